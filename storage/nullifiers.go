package storage

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// PendingVote is a semaphore vote waiting for its proof to be verified.
type PendingVote struct {
	PollID    string           `cbor:"0,keyasint,omitempty"`
	Proof     *semaphore.Proof `cbor:"1,keyasint,omitempty"`
	CreatedAt time.Time        `cbor:"2,keyasint,omitempty"`
}

func nullifierKey(pollID string, nullifier *big.Int) ([]byte, error) {
	b, err := crypto.FieldBytes(nullifier)
	if err != nil {
		return nil, fmt.Errorf("nullifier: %w", err)
	}
	return compositeKey(pollID, b), nil
}

// NullifierRecord returns the record of a nullifier in pollID or ErrNotFound.
func (s *Storage) NullifierRecord(pollID string, nullifier *big.Int) (*types.NullifierRecord, error) {
	key, err := nullifierKey(pollID, nullifier)
	if err != nil {
		return nil, err
	}
	rec := &types.NullifierRecord{}
	if err := s.getArtifact(nullifierPrefix, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CastVote records a verified nullifier and counts its vote in a single
// transaction. It returns ErrAlreadyExists if the nullifier is already
// recorded for the poll, whatever its status except REJECTED.
func (s *Storage) CastVote(pollID string, nullifier *big.Int, option int) error {
	return s.recordVote(pollID, nullifier, option, nil)
}

// RecordPendingVote records a nullifier as PENDING and queues its proof for
// deferred verification, in a single transaction. The tally is not touched
// until the vote is verified.
func (s *Storage) RecordPendingVote(pollID string, proof *semaphore.Proof) error {
	if proof == nil || proof.Nullifier == nil {
		return fmt.Errorf("invalid proof")
	}
	return s.recordVote(pollID, proof.Nullifier.MathBigInt(), proof.Option(), proof)
}

// recordVote writes the nullifier record. With a nil proof the vote is
// VERIFIED and tallied, otherwise it is PENDING and the proof is queued.
func (s *Storage) recordVote(pollID string, nullifier *big.Int, option int, proof *semaphore.Proof) error {
	key, err := nullifierKey(pollID, nullifier)
	if err != nil {
		return err
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	p, err := s.checkPollOpen(pollID)
	if err != nil {
		return err
	}
	if !p.HasOption(option) {
		return fmt.Errorf("option %d out of range", option)
	}

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	nullifiers := prefixeddb.NewPrefixedWriteTx(wtx, nullifierPrefix)
	if v, err := nullifiers.Get(key); err == nil {
		var prev types.NullifierRecord
		if err := decodeArtifact(v, &prev); err != nil {
			return err
		}
		if prev.Status != types.VoteRejected {
			return ErrAlreadyExists
		}
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	rec := &types.NullifierRecord{
		PollID:    pollID,
		Nullifier: types.BigIntFrom(nullifier),
		Option:    option,
		Status:    types.VoteVerified,
		CreatedAt: time.Now(),
	}
	if proof != nil {
		rec.Status = types.VotePending
		item, err := encodeArtifact(&PendingVote{PollID: pollID, Proof: proof, CreatedAt: rec.CreatedAt})
		if err != nil {
			return err
		}
		if err := prefixeddb.NewPrefixedWriteTx(wtx, pendingVotePrefix).Set(key, item); err != nil {
			return err
		}
	} else if err := incrementResult(prefixeddb.NewPrefixedWriteTx(wtx, resultPrefix), pollID, option); err != nil {
		return err
	}
	data, err := encodeArtifact(rec)
	if err != nil {
		return err
	}
	if err := nullifiers.Set(key, data); err != nil {
		return err
	}
	return wtx.Commit()
}

// NextPendingVote returns the next non-reserved pending vote and reserves
// it. The returned key is passed to MarkPendingVoteDone once processed. It
// returns ErrNoMoreElements if the queue has nothing to offer.
func (s *Storage) NextPendingVote() (*PendingVote, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var chosenKey, chosenVal []byte
	if err := prefixeddb.NewPrefixedReader(s.db, pendingVotePrefix).Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(pendingVoteReservPrefix, k) {
			return true
		}
		chosenKey = append([]byte(nil), k...)
		chosenVal = append([]byte(nil), v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate pending votes: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}
	pv := &PendingVote{}
	if err := decodeArtifact(chosenVal, pv); err != nil {
		return nil, nil, fmt.Errorf("decode pending vote: %w", err)
	}
	if err := s.setReservation(pendingVoteReservPrefix, chosenKey); err != nil {
		return nil, nil, fmt.Errorf("reserve pending vote: %w", err)
	}
	return pv, chosenKey, nil
}

// MarkPendingVoteDone settles a reserved pending vote. A verified vote becomes
// VERIFIED and is tallied in the same transaction, otherwise it becomes
// REJECTED. The queue item and its reservation are removed either way.
func (s *Storage) MarkPendingVoteDone(key []byte, verified bool) (*types.NullifierRecord, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	nullifiers := prefixeddb.NewPrefixedWriteTx(wtx, nullifierPrefix)
	v, err := nullifiers.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := &types.NullifierRecord{}
	if err := decodeArtifact(v, rec); err != nil {
		return nil, err
	}
	if rec.Status != types.VotePending {
		return nil, fmt.Errorf("nullifier record is %s, not %s", rec.Status, types.VotePending)
	}
	rec.Status = types.VoteRejected
	if verified {
		rec.Status = types.VoteVerified
		if err := incrementResult(prefixeddb.NewPrefixedWriteTx(wtx, resultPrefix), rec.PollID, rec.Option); err != nil {
			return nil, err
		}
	}
	data, err := encodeArtifact(rec)
	if err != nil {
		return nil, err
	}
	if err := nullifiers.Set(key, data); err != nil {
		return nil, err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wtx, pendingVotePrefix).Delete(key); err != nil {
		return nil, err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wtx, pendingVoteReservPrefix).Delete(key); err != nil {
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReleasePendingVoteReservations drops every reservation so votes reserved by
// a stopped worker are picked up again.
func (s *Storage) ReleasePendingVoteReservations() error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	n, err := s.releaseReservations(pendingVoteReservPrefix)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Infow("released pending vote reservations", "count", n)
	}
	return nil
}

// CountPendingVotes returns how many votes of pollID wait for verification.
func (s *Storage) CountPendingVotes(pollID string) (int, error) {
	return s.countKeys(pendingVotePrefix, pollID)
}

// CountNullifiers returns how many nullifier records of pollID have the
// given status.
func (s *Storage) CountNullifiers(pollID string, status types.VoteStatus) (int, error) {
	count := 0
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Iterate(idPrefix(pollID), func(_, v []byte) bool {
		var rec types.NullifierRecord
		if decodeErr = decodeArtifact(v, &rec); decodeErr != nil {
			return false
		}
		if rec.Status == status {
			count++
		}
		return true
	}); err != nil {
		return 0, err
	}
	return count, decodeErr
}
