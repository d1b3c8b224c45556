// Package receipts keeps one sparse Merkle tree per poll with a leaf for each
// accepted vote, so a voter can get an inclusion proof of their vote. The
// tree is a derived index: double votes are prevented by the unique records
// of the storage, not by the tree.
package receipts

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/types"
	"github.com/vocdoni/arbo"
	"github.com/zeebo/blake3"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// MaxLevels is the depth of the receipt trees.
	MaxLevels = 160
	// KeyLen is the length of the leaf keys, which are truncated hashes of
	// the vote key.
	KeyLen = MaxLevels / 8
)

var (
	// ErrKeyNotFound is returned when a vote has no receipt in the tree.
	ErrKeyNotFound = fmt.Errorf("receipt not found")
	// ErrReceiptExists is returned when a vote key is added twice.
	ErrReceiptExists = fmt.Errorf("receipt already exists")

	hashFunction = arbo.HashFunctionPoseidon
)

// ReceiptDB is a persistent and safe set of receipt trees, one per poll.
type ReceiptDB struct {
	mu    sync.Mutex
	addMu sync.Mutex
	db    db.Database
	trees map[string]*arbo.Tree
}

// New creates a ReceiptDB on top of the database.
func New(database db.Database) *ReceiptDB {
	return &ReceiptDB{
		db:    database,
		trees: make(map[string]*arbo.Tree),
	}
}

// LeafKey returns the tree key of a vote key (a nullifier or a token hash).
func LeafKey(voteKey []byte) []byte {
	sum := blake3.Sum256(voteKey)
	return sum[:KeyLen]
}

// leafValue encodes the option of a vote as the leaf value.
func leafValue(option int) []byte {
	return arbo.BigIntToBytes(hashFunction.Len(), big.NewInt(int64(option)))
}

// tree returns the receipt tree of a poll, opening it if needed.
func (r *ReceiptDB) tree(pollID string) (*arbo.Tree, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trees[pollID]; ok {
		return t, nil
	}
	t, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(r.db, treePrefix(pollID)),
		MaxLevels:    MaxLevels,
		HashFunction: hashFunction,
	})
	if err != nil {
		return nil, err
	}
	r.trees[pollID] = t
	return t, nil
}

// Add inserts the receipt of a vote of pollID.
func (r *ReceiptDB) Add(pollID string, voteKey []byte, option int) error {
	t, err := r.tree(pollID)
	if err != nil {
		return err
	}
	key := LeafKey(voteKey)
	r.addMu.Lock()
	defer r.addMu.Unlock()
	if _, _, err := t.Get(key); err == nil {
		return ErrReceiptExists
	}
	if err := t.Add(key, leafValue(option)); err != nil {
		if errors.Is(err, arbo.ErrKeyAlreadyExists) {
			return ErrReceiptExists
		}
		return err
	}
	log.Debugw("receipt added", "poll", pollID, "key", log.ShortHex(voteKey))
	return nil
}

// Root returns the current root of the receipt tree of pollID.
func (r *ReceiptDB) Root(pollID string) ([]byte, error) {
	t, err := r.tree(pollID)
	if err != nil {
		return nil, err
	}
	return t.Root()
}

// Size returns the number of receipts of pollID.
func (r *ReceiptDB) Size(pollID string) (int, error) {
	t, err := r.tree(pollID)
	if err != nil {
		return 0, err
	}
	return t.GetNLeafs()
}

// Proof returns the inclusion proof of a vote of pollID.
func (r *ReceiptDB) Proof(pollID string, voteKey []byte) (*types.Receipt, error) {
	t, err := r.tree(pollID)
	if err != nil {
		return nil, err
	}
	root, err := t.Root()
	if err != nil {
		return nil, err
	}
	key, value, siblings, inclusion, err := t.GenProof(LeafKey(voteKey))
	if err != nil {
		return nil, err
	}
	if !inclusion {
		return nil, ErrKeyNotFound
	}
	return &types.Receipt{
		PollID:   pollID,
		Root:     root,
		Key:      key,
		Value:    value,
		Siblings: siblings,
	}, nil
}

// Option returns the option encoded in the receipt value.
func Option(rc *types.Receipt) int {
	return int(arbo.BytesToBigInt(rc.Value).Int64())
}

// Verify checks a receipt against its own root.
func Verify(rc *types.Receipt) bool {
	if rc == nil {
		return false
	}
	valid, err := arbo.CheckProof(hashFunction, rc.Key, rc.Value, rc.Root, rc.Siblings)
	if err != nil {
		return false
	}
	return valid
}

func treePrefix(pollID string) []byte {
	return append([]byte(pollID), '/')
}
