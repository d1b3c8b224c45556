package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
)

// CastVote counts an anonymous semaphore vote and returns its status. The
// checks run in order: poll state, scope, proof (immediate mode only), group
// root, option range and nullifier uniqueness. In deferred mode the vote is
// recorded PENDING and its proof verified later by the vote processor.
func (s *Service) CastVote(ctx context.Context, pollID string, proof *semaphore.Proof) (types.VoteStatus, error) {
	if err := proof.Validate(); err != nil {
		return "", fmt.Errorf("%w: malformed proof", ErrValidation)
	}
	p, err := s.pollFor(pollID, types.KindSemaphore)
	if err != nil {
		return "", err
	}
	if proof.Scope.MathBigInt().Cmp(semaphore.Scope(p.ID)) != 0 {
		return "", fmt.Errorf("%w: proof is not for this poll", ErrValidation)
	}
	if p.Mode != types.ModeDeferred {
		if err := semaphore.VerifyProof(s.verifier, proof); err != nil {
			log.Debugw("invalid semaphore proof", "poll", p.ID, "error", err.Error())
			return "", fmt.Errorf("%w: invalid proof", errInvalidCrypto)
		}
	}
	g, err := s.st.Group(p.GroupID)
	if err != nil {
		return "", storageError(err, "group")
	}
	if !proof.MerkleTreeRoot.Equal(g.Root) {
		return "", fmt.Errorf("%w: proof is not for the poll group", ErrForbidden)
	}
	option := proof.Option()
	if !p.HasOption(option) {
		return "", fmt.Errorf("%w: unknown option", ErrValidation)
	}

	status := types.VoteVerified
	nullifier := proof.Nullifier.MathBigInt()
	if p.Mode == types.ModeDeferred {
		status = types.VotePending
		err = s.st.RecordPendingVote(p.ID, proof)
	} else {
		err = s.st.CastVote(p.ID, nullifier, option)
	}
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return "", fmt.Errorf("%w: already voted", ErrForbidden)
		}
		return "", storageError(err, "poll")
	}
	key, _ := crypto.FieldBytes(nullifier)
	if status == types.VoteVerified {
		if err := s.st.Receipts().Add(p.ID, key, option); err != nil {
			log.Warnw("cannot add vote receipt", "poll", p.ID, "error", err.Error())
		}
	}
	log.Debugw("semaphore vote cast", "poll", p.ID, "status", status, "nullifier", log.ShortHex(key))
	return status, nil
}

// VoteStatus returns the status of a nullifier in a poll.
func (s *Service) VoteStatus(ctx context.Context, pollID string, nullifier *types.BigInt) (types.VoteStatus, error) {
	if nullifier == nil || !crypto.IsFieldElement(nullifier.MathBigInt()) {
		return "", fmt.Errorf("%w: malformed nullifier", ErrValidation)
	}
	rec, err := s.st.NullifierRecord(pollID, nullifier.MathBigInt())
	if err != nil {
		return "", storageError(err, "vote")
	}
	return rec.Status, nil
}

// Receipt returns the inclusion proof of an accepted vote. The key is the
// nullifier of a semaphore vote or the token hash of a blind-token vote.
func (s *Service) Receipt(ctx context.Context, pollID string, key []byte) (*types.Receipt, error) {
	if _, err := s.st.Poll(pollID); err != nil {
		return nil, storageError(err, "poll")
	}
	rc, err := s.st.Receipts().Proof(pollID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt", ErrNotFound)
	}
	return rc, nil
}
