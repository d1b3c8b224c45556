// Package mimc computes MiMC hashes over the BN254 scalar field, matching the
// in-circuit gnark implementation used by the membership circuit.
package mimc

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/anonpoll/crypto"
)

// Hash returns the MiMC hash of the inputs, each one absorbed as a field
// element.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		b, err := crypto.FieldBytes(in)
		if err != nil {
			return nil, err
		}
		if _, err := h.Write(b); err != nil {
			return nil, err
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// MustHash is like Hash but panics on inputs out of the field. It is meant for
// values already validated by the caller.
func MustHash(inputs ...*big.Int) *big.Int {
	out, err := Hash(inputs...)
	if err != nil {
		panic(err)
	}
	return out
}
