package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
)

// Redemption is an anonymous blind-token vote. Token is the base64 prepared
// message (random prefix and poll bound token) and Signature the base64
// finalized signature over it.
type Redemption struct {
	PollID    string `json:"pollId"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
	Option    *int   `json:"option"`
}

// RequestSignature blind-signs a message for an eligible user of an OPEN
// blind-token poll. Each user gets at most one signature per poll; only a
// marker of the issuance is stored, never the signature.
func (s *Service) RequestSignature(ctx context.Context, userID, pollID string, blinded []byte) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	if len(blinded) == 0 {
		return nil, fmt.Errorf("%w: missing blinded message", ErrValidation)
	}
	p, err := s.pollFor(pollID, types.KindBlindToken)
	if err != nil {
		return nil, err
	}
	eligible, err := s.elig.HasRole(ctx, userID, p.RequiredRole)
	if err != nil {
		return nil, fmt.Errorf("eligibility: %w", err)
	}
	if !eligible {
		return nil, fmt.Errorf("%w: not eligible", ErrForbidden)
	}
	issued, err := s.st.SignatureIssued(pollID, userID)
	if err != nil {
		return nil, err
	}
	if issued {
		return nil, fmt.Errorf("%w: signature already issued", ErrConflict)
	}
	sig, err := s.signer.BlindSign(blinded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid blinded message", ErrValidation)
	}
	// the marker insert decides between concurrent requests of the same user
	if err := s.st.MarkSignatureIssued(pollID, userID); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: signature already issued", ErrConflict)
		}
		return nil, err
	}
	log.Infow("blind signature issued", "poll", pollID, "user", userID)
	return sig, nil
}

// RedeemVote counts an anonymous blind-token vote. The checks run in order:
// input shape, poll state, option range, token poll binding, signature and
// finally the unique consumption of the token together with the tally.
func (s *Service) RedeemVote(ctx context.Context, r *Redemption) error {
	if r == nil || r.PollID == "" || r.Token == "" || r.Signature == "" || r.Option == nil {
		return fmt.Errorf("%w: missing fields", ErrValidation)
	}
	prepared, err := blindrsa.Decode(r.Token)
	if err != nil {
		return fmt.Errorf("%w: malformed token", ErrValidation)
	}
	signature, err := blindrsa.Decode(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrValidation)
	}
	_, token, err := blindrsa.SplitPrepared(prepared)
	if err != nil {
		return fmt.Errorf("%w: malformed token", ErrValidation)
	}
	p, err := s.pollFor(r.PollID, types.KindBlindToken)
	if err != nil {
		return err
	}
	option := *r.Option
	if !p.HasOption(option) {
		return fmt.Errorf("%w: unknown option", ErrValidation)
	}
	tokenPoll, err := blindrsa.TokenPoll(token)
	if err != nil {
		return fmt.Errorf("%w: malformed token", ErrValidation)
	}
	if tokenPoll != p.ID {
		return fmt.Errorf("%w: token is not bound to this poll", ErrValidation)
	}
	if !s.signer.Verify(signature, prepared) {
		return fmt.Errorf("%w: invalid signature", errInvalidCrypto)
	}
	tokenHash := blindrsa.TokenHash(token)
	if err := s.st.RedeemToken(p.ID, tokenHash, option); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: already voted", ErrForbidden)
		}
		return storageError(err, "poll")
	}
	if err := s.st.Receipts().Add(p.ID, tokenHash, option); err != nil {
		log.Warnw("cannot add vote receipt", "poll", p.ID, "error", err.Error())
	}
	log.Debugw("blind token redeemed", "poll", p.ID, "token", log.ShortHex(tokenHash))
	return nil
}

// PublicKeyPEM returns the blind signature public key to publish to clients.
func (s *Service) PublicKeyPEM() ([]byte, error) {
	return blindrsa.MarshalPublicKeyPEM(s.signer.PublicKey())
}
