package crypto

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// SerializedFieldSize is the size in bytes of a serialized BN254 scalar
// field element.
const SerializedFieldSize = 32 // bytes

// FieldModulus returns the BN254 scalar field modulus, the field of the
// membership circuit.
func FieldModulus() *big.Int {
	return fr.Modulus()
}

// IsFieldElement reports whether x is in [0, modulus).
func IsFieldElement(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(fr.Modulus()) < 0
}

// FieldBytes serializes a field element as 32 bytes big endian. It returns an
// error if x is not a BN254 scalar field element.
func FieldBytes(x *big.Int) ([]byte, error) {
	if !IsFieldElement(x) {
		return nil, fmt.Errorf("value is not a field element")
	}
	b := make([]byte, SerializedFieldSize)
	x.FillBytes(b)
	return b, nil
}
