package storage

import (
	"fmt"
	"sort"

	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Poll retrieves a poll. It returns ErrNotFound if it does not exist.
func (s *Storage) Poll(pollID string) (*types.Poll, error) {
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, []byte(pollID), p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePoll stores a new poll and initializes its option counters to zero.
// It returns ErrAlreadyExists if the id is taken.
func (s *Storage) CreatePoll(p *types.Poll) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid poll")
	}
	data, err := encodeArtifact(p)
	if err != nil {
		return err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	polls := prefixeddb.NewPrefixedWriteTx(wtx, pollPrefix)
	found, err := exists(polls, []byte(p.ID))
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	if err := polls.Set([]byte(p.ID), data); err != nil {
		return err
	}
	results := prefixeddb.NewPrefixedWriteTx(wtx, resultPrefix)
	for i := range p.Options {
		if err := results.Set(compositeKey(p.ID, uint32Key(i)), encodeCounter(0)); err != nil {
			return err
		}
	}
	return wtx.Commit()
}

// UpdatePoll reads a poll, applies fn and stores the result atomically with
// respect to other writers of the storage. If fn returns an error nothing is
// written.
func (s *Storage) UpdatePoll(pollID string, fn func(p *types.Poll) error) (*types.Poll, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	p, err := s.Poll(pollID)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.setArtifact(pollPrefix, []byte(pollID), p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPolls returns every poll sorted by creation time.
func (s *Storage) ListPolls() ([]*types.Poll, error) {
	var polls []*types.Poll
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(s.db, pollPrefix).Iterate(nil, func(_, v []byte) bool {
		p := &types.Poll{}
		if err := decodeArtifact(v, p); err != nil {
			decodeErr = err
			return false
		}
		polls = append(polls, p)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	sort.SliceStable(polls, func(i, j int) bool {
		return polls[i].CreatedAt.Before(polls[j].CreatedAt)
	})
	return polls, nil
}

// ListPollsByStatus returns the polls with the given status.
func (s *Storage) ListPollsByStatus(status types.PollStatus) ([]*types.Poll, error) {
	all, err := s.ListPolls()
	if err != nil {
		return nil, err
	}
	var out []*types.Poll
	for _, p := range all {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// Results returns the tally of each option of a poll.
func (s *Storage) Results(pollID string, options int) ([]uint64, error) {
	r := prefixeddb.NewPrefixedReader(s.db, resultPrefix)
	out := make([]uint64, options)
	for i := range out {
		v, err := r.Get(compositeKey(pollID, uint32Key(i)))
		if err != nil {
			return nil, fmt.Errorf("result of option %d: %w", i, err)
		}
		out[i] = decodeCounter(v)
	}
	return out, nil
}

// incrementResult adds one vote to an option within the write transaction.
func incrementResult(wtx db.WriteTx, pollID string, option int) error {
	key := compositeKey(pollID, uint32Key(option))
	v, err := wtx.Get(key)
	if err != nil {
		return fmt.Errorf("result of option %d: %w", option, err)
	}
	return wtx.Set(key, encodeCounter(decodeCounter(v)+1))
}
