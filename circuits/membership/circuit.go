// Package membership implements the group membership circuit of semaphore
// polls. A proof shows that the prover knows the secret of an identity
// commitment included in a group Merkle tree of the given root, and binds a
// message (the option index) and a nullifier derived from the secret and the
// poll scope.
package membership

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/vocdoni/anonpoll/config"
)

// Depth is the depth of the group Merkle tree.
const Depth = config.MembershipTreeDepth

// MessageBits bounds the message to an option index (< 2^8).
const MessageBits = 8

// Circuit is the membership circuit. PathBits[i] is 1 when the node at level
// i is the right child.
type Circuit struct {
	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`
	Message   frontend.Variable `gnark:",public"`
	Scope     frontend.Variable `gnark:",public"`

	Secret   frontend.Variable
	PathBits [Depth]frontend.Variable
	Siblings [Depth]frontend.Variable
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	// leaf = identity commitment
	h.Write(c.Secret)
	node := h.Sum()
	for i := 0; i < Depth; i++ {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.Siblings[i], node)
		right := api.Select(c.PathBits[i], node, c.Siblings[i])
		h.Reset()
		h.Write(left, right)
		node = h.Sum()
	}
	api.AssertIsEqual(node, c.Root)

	h.Reset()
	h.Write(c.Scope, c.Secret)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	// range check, which also makes the message part of the constraints
	api.ToBinary(c.Message, MessageBits)
	return nil
}
