package storage

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Group retrieves a group. It returns ErrNotFound if it does not exist.
func (s *Storage) Group(groupID string) (*types.Group, error) {
	g := &types.Group{}
	if err := s.getArtifact(groupPrefix, []byte(groupID), g); err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGroup stores a new empty group. It returns ErrAlreadyExists if the
// id is taken.
func (s *Storage) CreateGroup(g *types.Group) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("invalid group")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if _, err := s.Group(g.ID); err == nil {
		return ErrAlreadyExists
	}
	return s.setArtifact(groupPrefix, []byte(g.ID), g)
}

// ListGroups returns every group.
func (s *Storage) ListGroups() ([]*types.Group, error) {
	var groups []*types.Group
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(s.db, groupPrefix).Iterate(nil, func(_, v []byte) bool {
		g := &types.Group{}
		if decodeErr = decodeArtifact(v, g); decodeErr != nil {
			return false
		}
		groups = append(groups, g)
		return true
	}); err != nil {
		return nil, err
	}
	return groups, decodeErr
}

// GroupSlots returns the ordered slot list of a group, tombstones included.
func (s *Storage) GroupSlots(groupID string) ([]types.GroupSlot, error) {
	var slots []types.GroupSlot
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(s.db, groupSlotPrefix).Iterate(idPrefix(groupID), func(_, v []byte) bool {
		var slot types.GroupSlot
		if decodeErr = decodeArtifact(v, &slot); decodeErr != nil {
			return false
		}
		slots = append(slots, slot)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	for i := range slots {
		if slots[i].Index != i {
			return nil, fmt.Errorf("group %s: slot %d stored at position %d", groupID, slots[i].Index, i)
		}
	}
	return slots, nil
}

// GroupCommitments returns the slot list as commitments, zero for removed
// members. This is the input to rebuild the group tree.
func (s *Storage) GroupCommitments(groupID string) ([]*big.Int, error) {
	slots, err := s.GroupSlots(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(slots))
	for i := range slots {
		if slots[i].Removed() {
			out[i] = big.NewInt(0)
		} else {
			out[i] = slots[i].Commitment.MathBigInt()
		}
	}
	return out, nil
}

// SaveGroup stores the group record and the changed slots in one
// transaction, so the persisted root always matches the persisted slots.
func (s *Storage) SaveGroup(g *types.Group, changed []types.GroupSlot) error {
	data, err := encodeArtifact(g)
	if err != nil {
		return err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	groups := prefixeddb.NewPrefixedWriteTx(wtx, groupPrefix)
	found, err := exists(groups, []byte(g.ID))
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := groups.Set([]byte(g.ID), data); err != nil {
		return err
	}
	slots := prefixeddb.NewPrefixedWriteTx(wtx, groupSlotPrefix)
	for i := range changed {
		v, err := encodeArtifact(&changed[i])
		if err != nil {
			return err
		}
		if err := slots.Set(compositeKey(g.ID, uint32Key(changed[i].Index)), v); err != nil {
			return err
		}
	}
	return wtx.Commit()
}
