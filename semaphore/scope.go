package semaphore

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// groupNamespace is the UUID namespace of group ids.
var groupNamespace = uuid.MustParse("6f6e6e61-706f-4c6c-9a67-726f75707331")

// Scope returns the external nullifier of a poll: keccak256(pollID) shifted
// right by 8 bits so it fits in the circuit field.
func Scope(pollID string) *big.Int {
	h := new(big.Int).SetBytes(ethcrypto.Keccak256([]byte(pollID)))
	return h.Rsh(h, 8)
}

// GenerateGroupID returns the id of the group that gathers the members of an
// external role within a category. It is a pure function of its inputs.
func GenerateGroupID(roleID, category string) string {
	return uuid.NewSHA1(groupNamespace, []byte(roleID+"\x00"+category)).String()
}
