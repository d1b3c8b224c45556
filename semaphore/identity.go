// Package semaphore implements the identity, group and proof primitives of
// semaphore polls: identity commitments, the group Merkle tree with stable
// indexes, poll scopes, nullifiers and membership proofs.
package semaphore

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/crypto/hash/mimc"
	"github.com/zeebo/blake3"
)

// identityDomain separates identity seeds from any other blake3 use.
const identityDomain = "anonpoll identity v1"

// Identity is a voter identity. The secret never leaves the client; only the
// commitment is published.
type Identity struct {
	Secret     *big.Int
	Commitment *big.Int
}

// NewIdentity derives the identity of a secret. The commitment is MiMC(secret)
// and the secret must be a non zero field element.
func NewIdentity(secret *big.Int) (*Identity, error) {
	if !crypto.IsFieldElement(secret) || secret.Sign() == 0 {
		return nil, fmt.Errorf("%w: secret out of range", ErrInvalidIdentity)
	}
	commitment, err := mimc.Hash(secret)
	if err != nil {
		return nil, err
	}
	return &Identity{Secret: new(big.Int).Set(secret), Commitment: commitment}, nil
}

// GenerateIdentity derives an identity from an arbitrary seed (a passphrase
// or stored random bytes). The same seed always yields the same identity.
func GenerateIdentity(seed []byte) (*Identity, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidIdentity)
	}
	h := blake3.NewDeriveKey(identityDomain)
	if _, err := h.Write(seed); err != nil {
		return nil, err
	}
	// 64 bytes of output make the reduction bias negligible
	out := make([]byte, 64)
	if _, err := h.Digest().Read(out); err != nil {
		return nil, err
	}
	secret := new(big.Int).Mod(new(big.Int).SetBytes(out), crypto.FieldModulus())
	if secret.Sign() == 0 {
		secret.SetInt64(1)
	}
	return NewIdentity(secret)
}

// RandomIdentity returns a fresh identity.
func RandomIdentity() (*Identity, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return GenerateIdentity(seed)
}

// Nullifier returns the nullifier of the identity for a scope. It is the same
// for every proof of the identity in that scope.
func (id *Identity) Nullifier(scope *big.Int) (*big.Int, error) {
	return mimc.Hash(scope, id.Secret)
}
