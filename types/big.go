package types

import (
	"fmt"
	"math/big"
)

// BigInt is a big.Int wrapper which marshals JSON and CBOR to a decimal
// string, the representation used by field elements on the client side.
type BigInt big.Int

// NewInt returns a BigInt set to the value of x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// BigIntFrom wraps a math/big.Int (nil safe).
func BigIntFrom(x *big.Int) *BigInt {
	if x == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(x))
}

func (i *BigInt) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if _, ok := i.MathBigInt().SetString(string(data), 0); !ok {
		return fmt.Errorf("invalid bigInt number: %s", data)
	}
	return nil
}

// MarshalCBOR encodes the BigInt as its decimal string.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(i.String())
}

// UnmarshalCBOR decodes a decimal string into the BigInt.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cborDecode(data, &s); err != nil {
		return err
	}
	return i.UnmarshalText([]byte(s))
}

func (i *BigInt) String() string {
	if i == nil {
		return "0"
	}
	return (*big.Int)(i).String()
}

// MathBigInt converts the BigInt to a math/big.Int.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

func (i *BigInt) SetUint64(x uint64) *BigInt {
	i.MathBigInt().SetUint64(x)
	return i
}

func (i *BigInt) SetBytes(b []byte) *BigInt {
	i.MathBigInt().SetBytes(b)
	return i
}

func (i *BigInt) Bytes() []byte {
	return i.MathBigInt().Bytes()
}

// Equal returns true if both values are the same number. Two nil values are
// equal, and nil is equal to zero.
func (i *BigInt) Equal(j *BigInt) bool {
	a, b := big.NewInt(0), big.NewInt(0)
	if i != nil {
		a = i.MathBigInt()
	}
	if j != nil {
		b = j.MathBigInt()
	}
	return a.Cmp(b) == 0
}

// IsZero returns true if the value is nil or zero.
func (i *BigInt) IsZero() bool {
	return i == nil || i.MathBigInt().Sign() == 0
}
