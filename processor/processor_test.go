package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/storage/receipts"
	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var validPoints = []byte("valid")

// pointsVerifier accepts the proofs whose points are validPoints, after an
// optional delay.
type pointsVerifier struct {
	delay time.Duration
}

func (v pointsVerifier) Verify(proof []byte, _ *membership.Circuit) error {
	time.Sleep(v.delay)
	if string(proof) != string(validPoints) {
		return errors.New("bad proof")
	}
	return nil
}

func newDeferredPoll(c *qt.C, st *storage.Storage) *types.Poll {
	p := &types.Poll{
		ID:        uuid.NewString(),
		Question:  "which one?",
		Options:   []types.Option{{Index: 0, Label: "A"}, {Index: 1, Label: "B"}},
		Kind:      types.KindSemaphore,
		Mode:      types.ModeDeferred,
		Status:    types.PollOpen,
		CreatedAt: time.Now(),
	}
	c.Assert(st.CreatePoll(p), qt.IsNil)
	return p
}

func pendingVote(c *qt.C, st *storage.Storage, pollID string, nullifier, option int64, points []byte) {
	proof := &semaphore.Proof{
		MerkleTreeRoot: types.NewInt(1),
		Nullifier:      types.NewInt(nullifier),
		Message:        types.NewInt(option),
		Scope:          types.BigIntFrom(semaphore.Scope(pollID)),
		Points:         points,
	}
	c.Assert(st.RecordPendingVote(pollID, proof), qt.IsNil)
}

func status(c *qt.C, st *storage.Storage, pollID string, nullifier int64) types.VoteStatus {
	rec, err := st.NullifierRecord(pollID, types.NewInt(nullifier).MathBigInt())
	c.Assert(err, qt.IsNil)
	return rec.Status
}

func TestProcessNext(t *testing.T) {
	c := qt.New(t)
	st := storage.New(metadb.NewTest(t))
	p := newDeferredPoll(c, st)
	pendingVote(c, st, p.ID, 1, 1, validPoints)
	pendingVote(c, st, p.ID, 2, 0, []byte("forged"))

	vp := New(st, pointsVerifier{}, 1, time.Second)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		processed, err := vp.processNext(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(processed, qt.IsTrue)
	}
	processed, err := vp.processNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(processed, qt.IsFalse)

	c.Assert(status(c, st, p.ID, 1), qt.Equals, types.VoteVerified)
	c.Assert(status(c, st, p.ID, 2), qt.Equals, types.VoteRejected)

	results, err := st.Results(p.ID, len(p.Options))
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []uint64{0, 1})

	// only the verified vote gets a receipt
	key, err := crypto.FieldBytes(types.NewInt(1).MathBigInt())
	c.Assert(err, qt.IsNil)
	rc, err := st.Receipts().Proof(p.ID, key)
	c.Assert(err, qt.IsNil)
	c.Assert(receipts.Verify(rc), qt.IsTrue)
	c.Assert(receipts.Option(rc), qt.Equals, 1)
	key, err = crypto.FieldBytes(types.NewInt(2).MathBigInt())
	c.Assert(err, qt.IsNil)
	_, err = st.Receipts().Proof(p.ID, key)
	c.Assert(err, qt.ErrorIs, receipts.ErrKeyNotFound)
}

func TestVerifyTimeout(t *testing.T) {
	c := qt.New(t)
	st := storage.New(metadb.NewTest(t))
	p := newDeferredPoll(c, st)
	pendingVote(c, st, p.ID, 7, 0, validPoints)

	vp := New(st, pointsVerifier{delay: 500 * time.Millisecond}, 1, 20*time.Millisecond)
	processed, err := vp.processNext(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(processed, qt.IsTrue)
	c.Assert(status(c, st, p.ID, 7), qt.Equals, types.VoteRejected)

	results, err := st.Results(p.ID, len(p.Options))
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []uint64{0, 0})
}

func TestCancelledVerificationStaysPending(t *testing.T) {
	c := qt.New(t)
	st := storage.New(metadb.NewTest(t))
	p := newDeferredPoll(c, st)
	pendingVote(c, st, p.ID, 9, 1, validPoints)

	vp := New(st, pointsVerifier{delay: 200 * time.Millisecond}, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	processed, err := vp.processNext(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(processed, qt.IsTrue)
	c.Assert(status(c, st, p.ID, 9), qt.Equals, types.VotePending)

	// the reservation is released on start and the vote verified
	c.Assert(vp.Start(context.Background()), qt.IsNil)
	defer func() {
		c.Assert(vp.Stop(), qt.IsNil)
	}()
	waitPending(c, st, p.ID)
	c.Assert(status(c, st, p.ID, 9), qt.Equals, types.VoteVerified)
}

func TestStartStop(t *testing.T) {
	c := qt.New(t)
	st := storage.New(metadb.NewTest(t))
	p := newDeferredPoll(c, st)
	for i := int64(1); i <= 6; i++ {
		points := validPoints
		if i%3 == 0 {
			points = []byte("forged")
		}
		pendingVote(c, st, p.ID, i, i%2, points)
	}

	vp := New(st, pointsVerifier{}, 3, time.Second)
	c.Assert(vp.Start(context.Background()), qt.IsNil)
	c.Assert(vp.Start(context.Background()), qt.ErrorMatches, "processor already running")
	waitPending(c, st, p.ID)
	c.Assert(vp.Stop(), qt.IsNil)
	c.Assert(vp.Stop(), qt.IsNil)

	verified, err := st.CountNullifiers(p.ID, types.VoteVerified)
	c.Assert(err, qt.IsNil)
	c.Assert(verified, qt.Equals, 4)
	rejected, err := st.CountNullifiers(p.ID, types.VoteRejected)
	c.Assert(err, qt.IsNil)
	c.Assert(rejected, qt.Equals, 2)

	results, err := st.Results(p.ID, len(p.Options))
	c.Assert(err, qt.IsNil)
	c.Assert(results[0]+results[1], qt.Equals, uint64(4))
	size, err := st.Receipts().Size(p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, 4)
}

// waitPending waits until the poll has no pending votes left.
func waitPending(c *qt.C, st *storage.Storage, pollID string) {
	deadline := time.Now().Add(10 * time.Second)
	for {
		n, err := st.CountPendingVotes(pollID)
		c.Assert(err, qt.IsNil)
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			c.Fatalf("%d votes still pending", n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
