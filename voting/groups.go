package voting

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
)

// Membership is the result of adding a commitment to a group.
type Membership struct {
	GroupID string        `json:"groupId"`
	Index   int           `json:"index"`
	Root    *types.BigInt `json:"root"`
	Size    int           `json:"size"`
}

// CreateGroup returns the group of a role within a category, creating it
// empty if needed. The id is derived from both values.
func (s *Service) CreateGroup(ctx context.Context, callerID, roleID, category string) (*types.Group, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	if roleID == "" {
		return nil, fmt.Errorf("%w: missing role", ErrValidation)
	}
	id := semaphore.GenerateGroupID(roleID, category)
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	if g, err := s.st.Group(id); err == nil {
		return g, nil
	}
	now := s.now()
	g := &types.Group{
		ID:        id,
		RoleID:    roleID,
		Category:  category,
		Root:      types.NewInt(0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.st.CreateGroup(g); err != nil {
		return nil, storageError(err, "group")
	}
	log.Infow("group created", "id", id, "role", roleID, "category", category)
	return g, nil
}

// GetGroup returns a group.
func (s *Service) GetGroup(ctx context.Context, groupID string) (*types.Group, error) {
	g, err := s.st.Group(groupID)
	if err != nil {
		return nil, storageError(err, "group")
	}
	return g, nil
}

// ListGroups returns every group.
func (s *Service) ListGroups(ctx context.Context) ([]*types.Group, error) {
	return s.st.ListGroups()
}

// GroupMembers returns the ordered slot list of a group, tombstones
// included. Clients rebuild the group tree from it to generate proofs.
func (s *Service) GroupMembers(ctx context.Context, groupID string) ([]types.GroupSlot, error) {
	if _, err := s.st.Group(groupID); err != nil {
		return nil, storageError(err, "group")
	}
	return s.st.GroupSlots(groupID)
}

// RegisterCommitment publishes the identity commitment of a user. A user has
// a single commitment; registering the same one again is a no-op.
func (s *Service) RegisterCommitment(ctx context.Context, userID string, commitment *types.BigInt) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	c, err := validCommitment(commitment)
	if err != nil {
		return err
	}
	if err := s.st.RegisterCommitment(userID, c); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: identity already registered", ErrConflict)
		}
		return err
	}
	return nil
}

// BatchCreateIdentities would create identities on behalf of users. The
// secrets of an identity must never reach the server, so it is not supported.
func (s *Service) BatchCreateIdentities(ctx context.Context, callerID string, userIDs []string) ([]*types.BigInt, error) {
	return nil, fmt.Errorf("%w: server side identity creation", ErrUnsupported)
}

// JoinGroup adds the commitment of an eligible user to a group. The
// commitment is registered for the user if it was not yet. Nothing is
// registered when the group is frozen by an OPEN poll.
func (s *Service) JoinGroup(ctx context.Context, groupID string, commitment *types.BigInt, userID string) (*Membership, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	c, err := validCommitment(commitment)
	if err != nil {
		return nil, err
	}
	g, err := s.st.Group(groupID)
	if err != nil {
		return nil, storageError(err, "group")
	}
	eligible, err := s.elig.HasRole(ctx, userID, g.RoleID)
	if err != nil {
		return nil, fmt.Errorf("eligibility: %w", err)
	}
	if !eligible {
		return nil, fmt.Errorf("%w: not eligible", ErrForbidden)
	}

	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	if err := s.requireMutable(groupID); err != nil {
		return nil, err
	}
	if err := s.RegisterCommitment(ctx, userID, commitment); err != nil {
		return nil, err
	}
	tree, g, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	index, err := tree.AddMember(c)
	if err != nil {
		return nil, groupError(err)
	}
	slot := types.GroupSlot{Index: index, Commitment: commitment, UserID: userID}
	if err := s.saveGroup(g, tree, slot); err != nil {
		return nil, err
	}
	log.Infow("member joined group", "group", groupID, "index", index, "size", g.Size)
	return &Membership{GroupID: groupID, Index: index, Root: g.Root, Size: g.Size}, nil
}

// RemoveMember tombstones the slot of a commitment. The indices of the other
// members do not change. The removal only lasts if the user no longer holds
// the group role: the next sync, including the one run by OpenPoll, adds an
// eligible user back in a new slot.
func (s *Service) RemoveMember(ctx context.Context, callerID, groupID string, commitment *types.BigInt) (*Membership, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	c, err := validCommitment(commitment)
	if err != nil {
		return nil, err
	}
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	tree, g, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMutable(groupID); err != nil {
		return nil, err
	}
	index, err := tree.RemoveMember(c)
	if err != nil {
		return nil, groupError(err)
	}
	if err := s.saveGroup(g, tree, types.GroupSlot{Index: index, Commitment: types.NewInt(0)}); err != nil {
		return nil, err
	}
	log.Infow("member removed from group", "group", groupID, "index", index, "size", g.Size)
	return &Membership{GroupID: groupID, Index: index, Root: g.Root, Size: g.Size}, nil
}

// SyncGroupMembers adds to a group every user holding its role who has a
// registered commitment and is not yet a member. It returns how many members
// were added. The new root and slots are persisted in one transaction.
func (s *Service) SyncGroupMembers(ctx context.Context, callerID, groupID string) (int, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return 0, err
	}
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	if _, err := s.st.Group(groupID); err != nil {
		return 0, storageError(err, "group")
	}
	if err := s.requireMutable(groupID); err != nil {
		return 0, err
	}
	return s.syncGroupMembers(ctx, groupID)
}

// syncGroupMembers must be called with groupMu held.
func (s *Service) syncGroupMembers(ctx context.Context, groupID string) (int, error) {
	tree, g, err := s.loadGroup(groupID)
	if err != nil {
		return 0, err
	}
	users, err := s.elig.ListMembersWithRole(ctx, g.RoleID)
	if err != nil {
		return 0, fmt.Errorf("eligibility: %w", err)
	}
	var added []types.GroupSlot
	for _, user := range users {
		c, err := s.st.Commitment(user)
		if errors.Is(err, storage.ErrNotFound) {
			log.Debugw("eligible user without identity", "group", groupID, "user", user)
			continue
		}
		if err != nil {
			return 0, err
		}
		if tree.IndexOf(c) >= 0 {
			continue
		}
		index, err := tree.AddMember(c)
		if errors.Is(err, semaphore.ErrMemberExists) {
			continue
		}
		if err != nil {
			return 0, groupError(err)
		}
		added = append(added, types.GroupSlot{Index: index, Commitment: types.BigIntFrom(c), UserID: user})
	}
	if len(added) == 0 {
		return 0, nil
	}
	if err := s.saveGroup(g, tree, added...); err != nil {
		return 0, err
	}
	log.Infow("group synced", "group", groupID, "added", len(added), "size", g.Size, "root", g.Root.String())
	return len(added), nil
}

// SyncUserToGroups adds the registered commitment of a user to every group
// whose role the user holds. Groups frozen by an OPEN poll are skipped. It
// returns the ids of the groups joined.
func (s *Service) SyncUserToGroups(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	c, err := s.st.Commitment(userID)
	if err != nil {
		return nil, storageError(err, "identity")
	}
	groups, err := s.st.ListGroups()
	if err != nil {
		return nil, err
	}
	var eligible []*types.Group
	for _, g := range groups {
		ok, err := s.elig.HasRole(ctx, userID, g.RoleID)
		if err != nil {
			return nil, fmt.Errorf("eligibility: %w", err)
		}
		if ok {
			eligible = append(eligible, g)
		}
	}

	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	joined := []string{}
	for _, eg := range eligible {
		frozen, err := s.groupFrozen(eg.ID)
		if err != nil {
			return nil, err
		}
		if frozen {
			continue
		}
		tree, g, err := s.loadGroup(eg.ID)
		if err != nil {
			return nil, err
		}
		if tree.IndexOf(c) >= 0 {
			continue
		}
		index, err := tree.AddMember(c)
		if err != nil {
			return nil, groupError(err)
		}
		slot := types.GroupSlot{Index: index, Commitment: types.BigIntFrom(c), UserID: userID}
		if err := s.saveGroup(g, tree, slot); err != nil {
			return nil, err
		}
		joined = append(joined, g.ID)
	}
	if len(joined) > 0 {
		log.Infow("user synced to groups", "user", userID, "groups", joined)
	}
	return joined, nil
}

// loadGroup rebuilds the tree of a group from its persisted slots.
func (s *Service) loadGroup(groupID string) (*semaphore.Group, *types.Group, error) {
	g, err := s.st.Group(groupID)
	if err != nil {
		return nil, nil, storageError(err, "group")
	}
	slots, err := s.st.GroupCommitments(groupID)
	if err != nil {
		return nil, nil, err
	}
	tree, err := semaphore.NewGroup(slots...)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild group %s: %w", groupID, err)
	}
	if !g.Root.Equal(types.BigIntFrom(tree.Root())) {
		return nil, nil, fmt.Errorf("group %s: persisted root does not match its slots", groupID)
	}
	return tree, g, nil
}

// saveGroup persists the changed slots with the new root and size.
func (s *Service) saveGroup(g *types.Group, tree *semaphore.Group, changed ...types.GroupSlot) error {
	g.Root = types.BigIntFrom(tree.Root())
	g.Size = tree.Size()
	g.Slots = len(tree.Slots())
	g.UpdatedAt = s.now()
	return s.st.SaveGroup(g, changed)
}

// groupFrozen reports whether an OPEN semaphore poll uses the group.
func (s *Service) groupFrozen(groupID string) (bool, error) {
	polls, err := s.st.ListPollsByStatus(types.PollOpen)
	if err != nil {
		return false, err
	}
	for _, p := range polls {
		if p.Kind == types.KindSemaphore && p.GroupID == groupID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) requireMutable(groupID string) error {
	frozen, err := s.groupFrozen(groupID)
	if err != nil {
		return err
	}
	if frozen {
		return fmt.Errorf("%w: group is used by an open poll", ErrInvalidState)
	}
	return nil
}

func validCommitment(commitment *types.BigInt) (*big.Int, error) {
	if commitment == nil {
		return nil, fmt.Errorf("%w: missing commitment", ErrValidation)
	}
	c := commitment.MathBigInt()
	if c.Sign() == 0 || !crypto.IsFieldElement(c) {
		return nil, fmt.Errorf("%w: invalid commitment", ErrValidation)
	}
	return c, nil
}

// groupError translates group tree errors to the voting taxonomy.
func groupError(err error) error {
	switch {
	case errors.Is(err, semaphore.ErrMemberExists):
		return fmt.Errorf("%w: already a member", ErrConflict)
	case errors.Is(err, semaphore.ErrMemberNotFound):
		return fmt.Errorf("%w: member", ErrNotFound)
	case errors.Is(err, semaphore.ErrGroupFull):
		return fmt.Errorf("%w: group is full", ErrInvalidState)
	case errors.Is(err, semaphore.ErrInvalidCommitment):
		return fmt.Errorf("%w: invalid commitment", ErrValidation)
	default:
		return err
	}
}
