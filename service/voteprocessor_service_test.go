package service

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/semaphore/semaphoretest"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestVoteProcessorService(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	store := storage.New(metadb.NewTest(t))
	defer store.Close()
	svc := newVotingService(t, store)

	// a deferred poll with one member, voting through the service
	identity, err := semaphore.GenerateIdentity([]byte("processor service voter"))
	c.Assert(err, qt.IsNil)
	group, err := semaphore.NewGroup(identity.Commitment)
	c.Assert(err, qt.IsNil)
	g := &types.Group{
		ID:        semaphore.GenerateGroupID("voters", "general"),
		RoleID:    "voters",
		Category:  "general",
		Root:      types.BigIntFrom(group.Root()),
		Size:      1,
		Slots:     1,
		CreatedAt: time.Now(),
	}
	c.Assert(store.CreateGroup(g), qt.IsNil)
	c.Assert(store.SaveGroup(g, []types.GroupSlot{{Index: 0, Commitment: types.BigIntFrom(identity.Commitment)}}), qt.IsNil)
	p := &types.Poll{
		ID:        "deferred-poll",
		Question:  "deferred?",
		Options:   []types.Option{{Index: 0, Label: "A"}, {Index: 1, Label: "B"}},
		Kind:      types.KindSemaphore,
		Mode:      types.ModeDeferred,
		GroupID:   g.ID,
		Status:    types.PollOpen,
		CreatedAt: time.Now(),
	}
	c.Assert(store.CreatePoll(p), qt.IsNil)

	proof, err := semaphore.GenerateVoteProof(semaphoretest.DigestProofs{}, identity, group, p.ID, 1)
	c.Assert(err, qt.IsNil)
	status, err := svc.CastVote(ctx, p.ID, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VotePending)

	vps := NewVoteProcessor(store, semaphoretest.DigestProofs{}, 1, time.Second)
	c.Assert(vps.Start(ctx), qt.IsNil)
	c.Assert(vps.Start(ctx), qt.ErrorMatches, "vote processor service already running")
	defer vps.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		status, err = svc.VoteStatus(ctx, p.ID, proof.Nullifier)
		c.Assert(err, qt.IsNil)
		if status != types.VotePending || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.Assert(status, qt.Equals, types.VoteVerified)

	results, err := store.Results(p.ID, len(p.Options))
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.DeepEquals, []uint64{0, 1})

	vps.Stop()
	c.Assert(vps.Running(), qt.IsFalse)
	c.Assert(vps.Start(ctx), qt.IsNil)
	c.Assert(vps.Running(), qt.IsTrue)
}
