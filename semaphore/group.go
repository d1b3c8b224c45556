package semaphore

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/crypto/hash/mimc"
)

// Depth is the depth of every group tree.
const Depth = membership.Depth

var (
	zeroHashesOnce sync.Once
	zeroHashes     [Depth + 1]*big.Int
)

// zeros returns the roots of the empty subtrees of each height.
func zeros() *[Depth + 1]*big.Int {
	zeroHashesOnce.Do(func() {
		zeroHashes[0] = big.NewInt(0)
		for i := 1; i <= Depth; i++ {
			zeroHashes[i] = mimc.MustHash(zeroHashes[i-1], zeroHashes[i-1])
		}
	})
	return &zeroHashes
}

// Group is an append only list of commitments stored in a Merkle tree of
// fixed depth. A member keeps its slot index forever; removing it leaves a
// zero leaf (tombstone) in its slot.
type Group struct {
	slots []*big.Int
	index map[string]int
	root  *big.Int
}

// MerkleProof is the authentication path of a leaf.
type MerkleProof struct {
	Root     *big.Int
	Leaf     *big.Int
	Index    int
	Siblings []*big.Int
}

// NewGroup rebuilds a group from its ordered slot list, zero values being
// tombstones. Two calls with the same slots produce the same root.
func NewGroup(slots ...*big.Int) (*Group, error) {
	g := &Group{index: make(map[string]int)}
	for _, s := range slots {
		if s == nil || s.Sign() == 0 {
			g.slots = append(g.slots, big.NewInt(0))
			continue
		}
		if _, err := g.AddMember(s); err != nil {
			return nil, err
		}
	}
	if len(g.slots) > 1<<Depth {
		return nil, ErrGroupFull
	}
	return g, nil
}

// AddMember appends a commitment and returns its index. Adding a commitment
// already present fails with ErrMemberExists.
func (g *Group) AddMember(commitment *big.Int) (int, error) {
	if !crypto.IsFieldElement(commitment) || commitment.Sign() == 0 {
		return 0, ErrInvalidCommitment
	}
	key := commitment.String()
	if _, ok := g.index[key]; ok {
		return 0, ErrMemberExists
	}
	if len(g.slots) >= 1<<Depth {
		return 0, ErrGroupFull
	}
	g.slots = append(g.slots, new(big.Int).Set(commitment))
	g.index[key] = len(g.slots) - 1
	g.root = nil
	return len(g.slots) - 1, nil
}

// RemoveMember tombstones the slot of a commitment and returns its index.
// Removing a commitment that is not an active member fails with
// ErrMemberNotFound.
func (g *Group) RemoveMember(commitment *big.Int) (int, error) {
	if commitment == nil {
		return 0, ErrMemberNotFound
	}
	i, ok := g.index[commitment.String()]
	if !ok {
		return 0, ErrMemberNotFound
	}
	g.slots[i] = big.NewInt(0)
	delete(g.index, commitment.String())
	g.root = nil
	return i, nil
}

// IndexOf returns the slot of an active member or -1.
func (g *Group) IndexOf(commitment *big.Int) int {
	if commitment == nil {
		return -1
	}
	if i, ok := g.index[commitment.String()]; ok {
		return i
	}
	return -1
}

// Size returns the number of active members.
func (g *Group) Size() int {
	return len(g.index)
}

// Slots returns a copy of the slot list, tombstones included.
func (g *Group) Slots() []*big.Int {
	out := make([]*big.Int, len(g.slots))
	for i, s := range g.slots {
		out[i] = new(big.Int).Set(s)
	}
	return out
}

// Root returns the Merkle root. An empty group (no slot ever allocated) has
// root 0.
func (g *Group) Root() *big.Int {
	if len(g.slots) == 0 {
		return big.NewInt(0)
	}
	if g.root == nil {
		levels := g.levels()
		g.root = levels[Depth][0]
	}
	return new(big.Int).Set(g.root)
}

// GenerateMembershipProof returns the Merkle path of an active member.
func (g *Group) GenerateMembershipProof(commitment *big.Int) (*MerkleProof, error) {
	i := g.IndexOf(commitment)
	if i < 0 {
		return nil, ErrMemberNotFound
	}
	z := zeros()
	levels := g.levels()
	proof := &MerkleProof{
		Root:     new(big.Int).Set(levels[Depth][0]),
		Leaf:     new(big.Int).Set(commitment),
		Index:    i,
		Siblings: make([]*big.Int, Depth),
	}
	pos := i
	for h := 0; h < Depth; h++ {
		sib := pos ^ 1
		if sib < len(levels[h]) {
			proof.Siblings[h] = new(big.Int).Set(levels[h][sib])
		} else {
			proof.Siblings[h] = new(big.Int).Set(z[h])
		}
		pos >>= 1
	}
	g.root = proof.Root
	return proof, nil
}

// levels computes the populated nodes of every level, from the leaves
// (level 0) to the root (level Depth). Missing right nodes are empty
// subtrees.
func (g *Group) levels() [][]*big.Int {
	z := zeros()
	levels := make([][]*big.Int, Depth+1)
	levels[0] = g.slots
	for h := 0; h < Depth; h++ {
		cur := levels[h]
		next := make([]*big.Int, (len(cur)+1)/2)
		for i := range next {
			left := cur[2*i]
			right := z[h]
			if 2*i+1 < len(cur) {
				right = cur[2*i+1]
			}
			next[i] = mimc.MustHash(left, right)
		}
		levels[h+1] = next
	}
	return levels
}

// Verify checks the path natively.
func (p *MerkleProof) Verify() bool {
	if p == nil || len(p.Siblings) != Depth || p.Index < 0 {
		return false
	}
	node := p.Leaf
	pos := p.Index
	for h := 0; h < Depth; h++ {
		var err error
		if pos&1 == 0 {
			node, err = mimc.Hash(node, p.Siblings[h])
		} else {
			node, err = mimc.Hash(p.Siblings[h], node)
		}
		if err != nil {
			return false
		}
		pos >>= 1
	}
	return node.Cmp(p.Root) == 0
}

// PathBits returns the direction bits of the path, 1 meaning right child.
func (p *MerkleProof) PathBits() []int {
	bits := make([]int, Depth)
	for h := 0; h < Depth; h++ {
		bits[h] = (p.Index >> h) & 1
	}
	return bits
}

func (p *MerkleProof) String() string {
	return fmt.Sprintf("index=%d root=%s", p.Index, p.Root)
}
