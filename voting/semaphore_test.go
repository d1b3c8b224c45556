package voting

import (
	"context"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage/receipts"
	"github.com/vocdoni/anonpoll/types"
)

func TestSemaphoreScenario(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	alice := e.addVoter(c, "alice")
	p := e.newSemaphorePoll(c, types.ModeImmediate)
	p, err := e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)

	group := e.clientGroup(c, p.GroupID)
	c.Assert(group.IndexOf(alice.Commitment), qt.Equals, 0)
	c.Assert(p.GroupRoot.MathBigInt().Cmp(group.Root()), qt.Equals, 0)

	proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 0)
	c.Assert(err, qt.IsNil)
	status, err := e.svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteVerified)

	// the exact same call again
	_, err = e.svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.ErrorIs, ErrForbidden)
	c.Assert(err, qt.ErrorMatches, ".*already voted")

	// a fresh proof of the same identity has the same nullifier
	again, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Nullifier.Equal(proof.Nullifier), qt.IsTrue)
	_, err = e.svc.CastVote(ctx, p.ID, again)
	c.Assert(err, qt.ErrorIs, ErrForbidden)

	status, err = e.svc.VoteStatus(ctx, p.ID, proof.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteVerified)

	key, err := crypto.FieldBytes(proof.Nullifier.MathBigInt())
	c.Assert(err, qt.IsNil)
	rc, err := e.svc.Receipt(ctx, p.ID, key)
	c.Assert(err, qt.IsNil)
	c.Assert(receipts.Verify(rc), qt.IsTrue)

	p, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Results, qt.DeepEquals, []uint64{1, 0})
}

func TestCastVoteRejections(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	alice := e.addVoter(c, "alice")
	bob := e.addVoter(c, "bob")
	p := e.newSemaphorePoll(c, types.ModeImmediate)
	other := e.newSemaphorePoll(c, types.ModeImmediate)

	// a proof against the group before it was synced
	stale := e.clientGroup(c, p.GroupID)
	c.Assert(stale.Size(), qt.Equals, 0)

	_, err := e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	group := e.clientGroup(c, p.GroupID)
	c.Assert(group.Size(), qt.Equals, 2)

	c.Run("draft poll", func(c *qt.C) {
		proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, other.ID, 0)
		c.Assert(err, qt.IsNil)
		_, err = e.svc.CastVote(ctx, other.ID, proof)
		c.Assert(err, qt.ErrorIs, ErrInvalidState)
	})

	c.Run("scope of another poll", func(c *qt.C) {
		proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, other.ID, 0)
		c.Assert(err, qt.IsNil)
		_, err = e.svc.CastVote(ctx, p.ID, proof)
		c.Assert(err, qt.ErrorIs, ErrValidation)
	})

	c.Run("foreign root", func(c *qt.C) {
		// a valid proof from a group that is not the poll's group
		foreign, err := semaphore.NewGroup(bob.Commitment, alice.Commitment)
		c.Assert(err, qt.IsNil)
		proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, foreign, p.ID, 0)
		c.Assert(err, qt.IsNil)
		c.Assert(semaphore.VerifyProof(digestProofs{}, proof), qt.IsNil)
		_, err = e.svc.CastVote(ctx, p.ID, proof)
		c.Assert(err, qt.ErrorIs, ErrForbidden)
	})

	c.Run("invalid proof", func(c *qt.C) {
		proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 0)
		c.Assert(err, qt.IsNil)
		proof.Points[0] ^= 1
		_, err = e.svc.CastVote(ctx, p.ID, proof)
		c.Assert(err, qt.ErrorIs, ErrUnauthorized)
		c.Assert(err, qt.ErrorIs, ErrCryptoFailure)
	})

	c.Run("option out of range", func(c *qt.C) {
		proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 5)
		c.Assert(err, qt.IsNil)
		_, err = e.svc.CastVote(ctx, p.ID, proof)
		c.Assert(err, qt.ErrorIs, ErrValidation)
	})

	c.Run("malformed proof", func(c *qt.C) {
		_, err := e.svc.CastVote(ctx, p.ID, nil)
		c.Assert(err, qt.ErrorIs, ErrValidation)
		_, err = e.svc.CastVote(ctx, p.ID, &semaphore.Proof{Points: []byte{1}})
		c.Assert(err, qt.ErrorIs, ErrValidation)
	})

	// none of the rejected attempts used alice's nullifier
	proof, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 1)
	c.Assert(err, qt.IsNil)
	status, err := e.svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteVerified)
}

func TestDeferredVotes(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	alice := e.addVoter(c, "alice")
	bob := e.addVoter(c, "bob")
	p := e.newSemaphorePoll(c, types.ModeDeferred)
	_, err := e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	group := e.clientGroup(c, p.GroupID)

	good, err := semaphore.GenerateVoteProof(digestProofs{}, alice, group, p.ID, 1)
	c.Assert(err, qt.IsNil)
	bad, err := semaphore.GenerateVoteProof(digestProofs{}, bob, group, p.ID, 0)
	c.Assert(err, qt.IsNil)
	bad.Points[0] ^= 1

	for _, proof := range []*semaphore.Proof{good, bad} {
		status, err := e.svc.CastVote(ctx, p.ID, proof)
		c.Assert(err, qt.IsNil)
		c.Assert(status, qt.Equals, types.VotePending)
	}
	_, err = e.svc.CastVote(ctx, p.ID, good)
	c.Assert(err, qt.ErrorIs, ErrForbidden)

	// the poll cannot close while votes wait for verification
	_, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)

	for {
		pv, key, err := e.st.NextPendingVote()
		if err != nil {
			break
		}
		verified := semaphore.VerifyProof(digestProofs{}, pv.Proof) == nil
		_, err = e.st.MarkPendingVoteDone(key, verified)
		c.Assert(err, qt.IsNil)
	}
	status, err := e.svc.VoteStatus(ctx, p.ID, good.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteVerified)
	status, err = e.svc.VoteStatus(ctx, p.ID, bad.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteRejected)

	// a rejected nullifier may vote again with a valid proof
	retry, err := semaphore.GenerateVoteProof(digestProofs{}, bob, group, p.ID, 0)
	c.Assert(err, qt.IsNil)
	status, err = e.svc.CastVote(ctx, p.ID, retry)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VotePending)
	pv, key, err := e.st.NextPendingVote()
	c.Assert(err, qt.IsNil)
	c.Assert(pv.Proof.Nullifier.Equal(retry.Nullifier), qt.IsTrue)
	_, err = e.st.MarkPendingVoteDone(key, true)
	c.Assert(err, qt.IsNil)

	p, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Results, qt.DeepEquals, []uint64{1, 1})
}

var (
	groth16Once sync.Once
	groth16Keys *membership.Keys
	groth16Err  error
)

func TestSemaphoreGroth16(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	c := qt.New(t)
	groth16Once.Do(func() {
		groth16Keys, groth16Err = membership.Setup()
	})
	c.Assert(groth16Err, qt.IsNil)
	e := newTestEnvWithVerifier(t, groth16Keys)
	ctx := context.Background()

	alice := e.addVoter(c, "alice")
	e.addVoter(c, "bob")
	p := e.newSemaphorePoll(c, types.ModeImmediate)
	_, err := e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	group := e.clientGroup(c, p.GroupID)

	proof, err := semaphore.GenerateVoteProof(groth16Keys, alice, group, p.ID, 1)
	c.Assert(err, qt.IsNil)
	status, err := e.svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteVerified)

	// a proof with a forged option does not verify
	forged := *proof
	forged.Message = types.NewInt(0)
	_, err = e.svc.CastVote(ctx, p.ID, &forged)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)

	_, err = e.svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.ErrorIs, ErrForbidden)

	p, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Results, qt.DeepEquals, []uint64{0, 1})
}
