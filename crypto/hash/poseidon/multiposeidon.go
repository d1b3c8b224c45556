// Package poseidon hashes variable length lists of field elements with the
// iden3 Poseidon implementation, which takes at most 16 inputs per call.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

const (
	chunkSize = 16
	// MaxInputs is the maximum number of inputs of MultiPoseidon, one level
	// of chunk hashes.
	MaxInputs = chunkSize * chunkSize
)

// MultiPoseidon hashes up to MaxInputs field elements. The inputs are hashed
// in chunks of 16 and the chunk hashes hashed together; a single chunk is
// returned as is.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	switch {
	case len(inputs) == 0:
		return nil, fmt.Errorf("no inputs provided")
	case len(inputs) > MaxInputs:
		return nil, fmt.Errorf("too many inputs: %d > %d", len(inputs), MaxInputs)
	}
	hashes := make([]*big.Int, 0, (len(inputs)+chunkSize-1)/chunkSize)
	for start := 0; start < len(inputs); start += chunkSize {
		end := min(start+chunkSize, len(inputs))
		h, err := poseidon.Hash(inputs[start:end])
		if err != nil {
			return nil, fmt.Errorf("hash chunk %d: %w", start/chunkSize, err)
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return poseidon.Hash(hashes)
}

// HashCounters commits to a list of counters, such as the tally of a poll.
func HashCounters(counters []uint64) (*big.Int, error) {
	inputs := make([]*big.Int, len(counters))
	for i, v := range counters {
		inputs[i] = new(big.Int).SetUint64(v)
	}
	return MultiPoseidon(inputs...)
}
