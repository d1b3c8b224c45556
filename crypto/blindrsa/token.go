package blindrsa

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	tokenPrefix    = "poll-"
	tokenNonceSize = 16
)

// NewToken returns a fresh voting token bound to pollID, with the format
// poll-<pollID>-<random hex>.
func NewToken(random io.Reader, pollID string) (string, error) {
	if pollID == "" {
		return "", fmt.Errorf("empty poll id")
	}
	nonce := make([]byte, tokenNonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return "", fmt.Errorf("token nonce: %w", err)
	}
	return tokenPrefix + pollID + "-" + hex.EncodeToString(nonce), nil
}

// TokenPoll returns the poll id a token is bound to.
func TokenPoll(token string) (string, error) {
	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return "", fmt.Errorf("missing token prefix")
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", fmt.Errorf("malformed token")
	}
	nonce := rest[i+1:]
	if len(nonce) != 2*tokenNonceSize {
		return "", fmt.Errorf("malformed token nonce")
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return "", fmt.Errorf("malformed token nonce: %w", err)
	}
	return rest[:i], nil
}

// SplitPrepared separates a prepared message into its random prefix and the
// original token.
func SplitPrepared(prepared []byte) (prefix []byte, token string, err error) {
	if len(prepared) <= PrefixSize {
		return nil, "", fmt.Errorf("prepared message too short")
	}
	return prepared[:PrefixSize], string(prepared[PrefixSize:]), nil
}

// TokenHash is the key of the consumed-token record.
func TokenHash(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// Encode is the base64 codec used for every binary value of the protocol on
// the wire.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
