package voting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/anonpoll/config"
	"github.com/vocdoni/anonpoll/crypto/hash/poseidon"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
)

// PollSetup is the input to create a poll.
type PollSetup struct {
	Question string                 `json:"question"`
	Options  []types.Option         `json:"options"`
	Kind     types.PollKind         `json:"kind"`
	Mode     types.VerificationMode `json:"mode,omitempty"`
	Category string                 `json:"category,omitempty"`
	// RequiredRole gates the issuance of blind tokens.
	RequiredRole string `json:"requiredRole,omitempty"`
	// GroupID is the semaphore group whose members may vote.
	GroupID   string     `json:"groupId,omitempty"`
	CloseTime *time.Time `json:"closeTime,omitempty"`
}

// validateOptions checks that options are indexed by their position and have
// unique non-empty labels.
func validateOptions(options []types.Option) error {
	if len(options) < 2 || len(options) > config.MaxPollOptions {
		return fmt.Errorf("%w: a poll needs between 2 and %d options", ErrValidation, config.MaxPollOptions)
	}
	seen := make(map[string]struct{}, len(options))
	for i, o := range options {
		if o.Index != i {
			return fmt.Errorf("%w: option %d has index %d", ErrValidation, i, o.Index)
		}
		label := strings.TrimSpace(o.Label)
		if label == "" {
			return fmt.Errorf("%w: option %d has an empty label", ErrValidation, i)
		}
		if _, ok := seen[label]; ok {
			return fmt.Errorf("%w: duplicate option %q", ErrValidation, label)
		}
		seen[label] = struct{}{}
	}
	return nil
}

// CreatePoll creates a DRAFT poll with every option counter at zero.
func (s *Service) CreatePoll(ctx context.Context, callerID string, setup *PollSetup) (*types.Poll, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	if setup == nil || strings.TrimSpace(setup.Question) == "" {
		return nil, fmt.Errorf("%w: missing question", ErrValidation)
	}
	if err := validateOptions(setup.Options); err != nil {
		return nil, err
	}
	now := s.now()
	if setup.CloseTime != nil && !setup.CloseTime.After(now) {
		return nil, fmt.Errorf("%w: close time is in the past", ErrValidation)
	}
	p := &types.Poll{
		ID:        uuid.NewString(),
		Question:  strings.TrimSpace(setup.Question),
		Options:   setup.Options,
		Kind:      setup.Kind,
		Category:  setup.Category,
		Status:    types.PollDraft,
		CreatedBy: callerID,
		CreatedAt: now,
		CloseTime: setup.CloseTime,
	}
	switch setup.Kind {
	case types.KindBlindToken:
		if setup.RequiredRole == "" {
			return nil, fmt.Errorf("%w: blind token polls need a required role", ErrValidation)
		}
		if setup.GroupID != "" {
			return nil, fmt.Errorf("%w: blind token polls have no group", ErrValidation)
		}
		if setup.Mode != "" && setup.Mode != types.ModeImmediate {
			return nil, fmt.Errorf("%w: blind token polls are verified immediately", ErrValidation)
		}
		p.Mode = types.ModeImmediate
		p.RequiredRole = setup.RequiredRole
	case types.KindSemaphore:
		if setup.GroupID == "" {
			return nil, fmt.Errorf("%w: semaphore polls need a group", ErrValidation)
		}
		g, err := s.st.Group(setup.GroupID)
		if err != nil {
			return nil, storageError(err, "group")
		}
		switch setup.Mode {
		case "", types.ModeImmediate:
			p.Mode = types.ModeImmediate
		case types.ModeDeferred:
			p.Mode = types.ModeDeferred
		default:
			return nil, fmt.Errorf("%w: unknown verification mode %q", ErrValidation, setup.Mode)
		}
		p.GroupID = g.ID
		p.RequiredRole = g.RoleID
		if p.Category == "" {
			p.Category = g.Category
		}
	default:
		return nil, fmt.Errorf("%w: unknown poll kind %q", ErrValidation, setup.Kind)
	}
	if err := s.st.CreatePoll(p); err != nil {
		return nil, storageError(err, "poll")
	}
	log.Infow("poll created", "id", p.ID, "kind", p.Kind, "mode", p.Mode, "options", len(p.Options))
	return p, nil
}

// OpenPoll moves a DRAFT poll to OPEN. For semaphore polls the group is
// synced with the eligibility source first and its root snapshotted into the
// poll. If another OPEN poll already froze the group, the sync is skipped.
func (s *Service) OpenPoll(ctx context.Context, callerID, pollID string) (*types.Poll, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	p, err := s.st.Poll(pollID)
	if err != nil {
		return nil, storageError(err, "poll")
	}
	if p.Status != types.PollDraft {
		return nil, fmt.Errorf("%w: poll is %s", ErrInvalidState, p.Status)
	}
	if p.Expired(s.now()) {
		return nil, fmt.Errorf("%w: close time already passed", ErrInvalidState)
	}

	var root *types.BigInt
	if p.Kind == types.KindSemaphore {
		s.groupMu.Lock()
		defer s.groupMu.Unlock()
		frozen, err := s.groupFrozen(p.GroupID)
		if err != nil {
			return nil, err
		}
		if !frozen {
			if _, err := s.syncGroupMembers(ctx, p.GroupID); err != nil {
				return nil, err
			}
		}
		g, err := s.st.Group(p.GroupID)
		if err != nil {
			return nil, storageError(err, "group")
		}
		if g.Size == 0 {
			log.Warnw("opening poll with an empty group", "poll", p.ID, "group", g.ID)
		}
		root = g.Root
	}

	p, err = s.st.UpdatePoll(pollID, func(p *types.Poll) error {
		if p.Status != types.PollDraft {
			return fmt.Errorf("%w: poll is %s", ErrInvalidState, p.Status)
		}
		p.Status = types.PollOpen
		p.GroupRoot = root
		return nil
	})
	if err != nil {
		return nil, storageError(err, "poll")
	}
	log.Infow("poll opened", "id", p.ID, "groupRoot", p.GroupRoot.String())
	return p, nil
}

// ClosePoll moves an OPEN poll to CLOSED and commits to its results. A poll
// with votes waiting for deferred verification cannot be closed yet.
func (s *Service) ClosePoll(ctx context.Context, callerID, pollID string) (*types.Poll, error) {
	if err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	return s.closePoll(pollID)
}

func (s *Service) closePoll(pollID string) (*types.Poll, error) {
	var results []uint64
	p, err := s.st.UpdatePoll(pollID, func(p *types.Poll) error {
		if p.Status != types.PollOpen {
			return fmt.Errorf("%w: poll is %s", ErrInvalidState, p.Status)
		}
		pending, err := s.st.CountPendingVotes(p.ID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d votes pending verification", ErrInvalidState, pending)
		}
		results, err = s.st.Results(p.ID, len(p.Options))
		if err != nil {
			return err
		}
		hash, err := ResultsHash(results)
		if err != nil {
			return err
		}
		now := s.now()
		p.Status = types.PollClosed
		p.ClosedAt = &now
		p.ResultsHash = types.BigIntFrom(hash)
		return nil
	})
	if err != nil {
		return nil, storageError(err, "poll")
	}
	p.Results = results
	log.Infow("poll closed", "id", p.ID, "resultsHash", p.ResultsHash.String())
	return p, nil
}

// CloseExpiredPolls closes every OPEN poll whose close time has passed and
// returns how many were closed. Polls that cannot be closed yet are retried
// on the next call.
func (s *Service) CloseExpiredPolls(ctx context.Context) (int, error) {
	polls, err := s.st.ListPollsByStatus(types.PollOpen)
	if err != nil {
		return 0, err
	}
	now := s.now()
	closed := 0
	for _, p := range polls {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if !p.Expired(now) {
			continue
		}
		if _, err := s.closePoll(p.ID); err != nil {
			log.Warnw("cannot close expired poll", "id", p.ID, "error", err.Error())
			continue
		}
		closed++
	}
	return closed, nil
}

// GetPoll returns a poll. Results are only included once the poll is CLOSED.
func (s *Service) GetPoll(ctx context.Context, pollID string) (*types.Poll, error) {
	p, err := s.st.Poll(pollID)
	if err != nil {
		return nil, storageError(err, "poll")
	}
	if err := s.fillResults(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPolls returns every poll, with results for the CLOSED ones.
func (s *Service) ListPolls(ctx context.Context) ([]*types.Poll, error) {
	polls, err := s.st.ListPolls()
	if err != nil {
		return nil, err
	}
	for _, p := range polls {
		if err := s.fillResults(p); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (s *Service) fillResults(p *types.Poll) error {
	p.Results = nil
	if p.Status != types.PollClosed {
		return nil
	}
	results, err := s.st.Results(p.ID, len(p.Options))
	if err != nil {
		return err
	}
	p.Results = results
	return nil
}

// ResultsHash is the Poseidon commitment to the tally of a closed poll.
func ResultsHash(results []uint64) (*big.Int, error) {
	return poseidon.HashCounters(results)
}

// pollFor loads a poll and checks it is OPEN and of the given kind.
func (s *Service) pollFor(pollID string, kind types.PollKind) (*types.Poll, error) {
	if pollID == "" {
		return nil, fmt.Errorf("%w: missing poll id", ErrValidation)
	}
	p, err := s.st.Poll(pollID)
	if err != nil {
		return nil, storageError(err, "poll")
	}
	if p.Kind != kind {
		return nil, fmt.Errorf("%w: poll is not a %s poll", ErrValidation, kind)
	}
	if p.Status != types.PollOpen {
		return nil, fmt.Errorf("%w: poll is %s", ErrInvalidState, p.Status)
	}
	return p, nil
}

// storageError translates storage errors to the voting taxonomy. Errors that
// already belong to it are returned unchanged.
func storageError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, storage.ErrAlreadyExists):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	case errors.Is(err, storage.ErrPollNotOpen):
		return fmt.Errorf("%w: poll is not open", ErrInvalidState)
	default:
		return err
	}
}
