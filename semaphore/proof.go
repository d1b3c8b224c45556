package semaphore

import (
	"fmt"

	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/types"
)

// Proof is a semaphore vote: a membership proof bound to a poll scope and
// carrying the chosen option as message.
type Proof struct {
	MerkleTreeRoot *types.BigInt  `json:"merkleTreeRoot" cbor:"0,keyasint,omitempty"`
	Nullifier      *types.BigInt  `json:"nullifier"      cbor:"1,keyasint,omitempty"`
	Message        *types.BigInt  `json:"message"        cbor:"2,keyasint,omitempty"`
	Scope          *types.BigInt  `json:"scope"          cbor:"3,keyasint,omitempty"`
	Points         types.HexBytes `json:"points"         cbor:"4,keyasint,omitempty"`
}

// Prover generates proofs. It is implemented by *membership.Keys.
type Prover interface {
	Prove(assignment *membership.Circuit) ([]byte, error)
}

// Verifier verifies proofs. It is implemented by *membership.Keys.
type Verifier interface {
	Verify(proof []byte, public *membership.Circuit) error
}

// GenerateVoteProof proves that identity is a member of group and votes for
// option in the poll. Proving the same identity twice in the same poll gives
// the same nullifier.
func GenerateVoteProof(prover Prover, identity *Identity, group *Group, pollID string, option int) (*Proof, error) {
	if option < 0 || option >= 1<<membership.MessageBits {
		return nil, fmt.Errorf("option %d out of range", option)
	}
	mp, err := group.GenerateMembershipProof(identity.Commitment)
	if err != nil {
		return nil, err
	}
	scope := Scope(pollID)
	nullifier, err := identity.Nullifier(scope)
	if err != nil {
		return nil, err
	}
	assignment := &membership.Circuit{
		Root:      mp.Root,
		Nullifier: nullifier,
		Message:   option,
		Scope:     scope,
		Secret:    identity.Secret,
	}
	bits := mp.PathBits()
	for i := 0; i < membership.Depth; i++ {
		assignment.PathBits[i] = bits[i]
		assignment.Siblings[i] = mp.Siblings[i]
	}
	points, err := prover.Prove(assignment)
	if err != nil {
		return nil, err
	}
	return &Proof{
		MerkleTreeRoot: types.BigIntFrom(mp.Root),
		Nullifier:      types.BigIntFrom(nullifier),
		Message:        types.NewInt(int64(option)),
		Scope:          types.BigIntFrom(scope),
		Points:         points,
	}, nil
}

// VerifyProof checks the proof against its own public inputs. It does not
// check which group the root belongs to. Any failure, including a panic of
// the proof system on malformed input, returns ErrInvalidProof.
func VerifyProof(verifier Verifier, p *Proof) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed proof", ErrInvalidProof)
		}
	}()
	if err := p.Validate(); err != nil {
		return err
	}
	public := &membership.Circuit{
		Root:      p.MerkleTreeRoot.MathBigInt(),
		Nullifier: p.Nullifier.MathBigInt(),
		Message:   p.Message.MathBigInt(),
		Scope:     p.Scope.MathBigInt(),
	}
	if err := verifier.Verify(p.Points, public); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}

// Validate checks that every field is present and is a field element.
func (p *Proof) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrInvalidProof)
	}
	for name, v := range map[string]*types.BigInt{
		"merkleTreeRoot": p.MerkleTreeRoot,
		"nullifier":      p.Nullifier,
		"message":        p.Message,
		"scope":          p.Scope,
	} {
		if v == nil || !crypto.IsFieldElement(v.MathBigInt()) {
			return fmt.Errorf("%w: bad %s", ErrInvalidProof, name)
		}
	}
	if len(p.Points) == 0 {
		return fmt.Errorf("%w: missing points", ErrInvalidProof)
	}
	return nil
}

// Option returns the message as an option index, or -1 if it does not fit.
func (p *Proof) Option() int {
	if p.Message == nil || !p.Message.MathBigInt().IsInt64() {
		return -1
	}
	m := p.Message.MathBigInt().Int64()
	if m < 0 || m >= 1<<membership.MessageBits {
		return -1
	}
	return int(m)
}

