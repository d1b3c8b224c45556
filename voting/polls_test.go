package voting

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/types"
)

func TestCreatePollValidation(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name   string
		caller string
		setup  *PollSetup
		err    error
	}{
		{"no caller", "", &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindBlindToken, RequiredRole: testRole}, ErrUnauthorized},
		{"not admin", "bob", &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindBlindToken, RequiredRole: testRole}, ErrForbidden},
		{"no question", testAdmin, &PollSetup{Options: twoOptions(), Kind: types.KindBlindToken, RequiredRole: testRole}, ErrValidation},
		{"one option", testAdmin, &PollSetup{Question: "q", Options: twoOptions()[:1], Kind: types.KindBlindToken, RequiredRole: testRole}, ErrValidation},
		{"duplicate labels", testAdmin, &PollSetup{Question: "q", Options: []types.Option{{Index: 0, Label: "A"}, {Index: 1, Label: "A"}}, Kind: types.KindBlindToken, RequiredRole: testRole}, ErrValidation},
		{"empty label", testAdmin, &PollSetup{Question: "q", Options: []types.Option{{Index: 0, Label: "A"}, {Index: 1, Label: " "}}, Kind: types.KindBlindToken, RequiredRole: testRole}, ErrValidation},
		{"bad index", testAdmin, &PollSetup{Question: "q", Options: []types.Option{{Index: 0, Label: "A"}, {Index: 5, Label: "B"}}, Kind: types.KindBlindToken, RequiredRole: testRole}, ErrValidation},
		{"past close", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindBlindToken, RequiredRole: testRole, CloseTime: &past}, ErrValidation},
		{"unknown kind", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: "plain"}, ErrValidation},
		{"blind without role", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindBlindToken}, ErrValidation},
		{"blind deferred", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindBlindToken, RequiredRole: testRole, Mode: types.ModeDeferred}, ErrValidation},
		{"semaphore without group", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindSemaphore}, ErrValidation},
		{"semaphore unknown group", testAdmin, &PollSetup{Question: "q", Options: twoOptions(), Kind: types.KindSemaphore, GroupID: "nope"}, ErrNotFound},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			_, err := e.svc.CreatePoll(ctx, tt.caller, tt.setup)
			c.Assert(err, qt.ErrorIs, tt.err)
		})
	}
}

func TestPollLifecycle(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	p, err := e.svc.CreatePoll(ctx, testAdmin, &PollSetup{
		Question:     "lifecycle?",
		Options:      twoOptions(),
		Kind:         types.KindBlindToken,
		RequiredRole: testRole,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, types.PollDraft)
	c.Assert(p.Mode, qt.Equals, types.ModeImmediate)

	_, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	_, err = e.svc.OpenPoll(ctx, "bob", p.ID)
	c.Assert(err, qt.ErrorIs, ErrForbidden)
	_, err = e.svc.OpenPoll(ctx, testAdmin, "missing")
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	p, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, types.PollOpen)
	_, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)

	// running tallies are hidden
	got, err := e.svc.GetPoll(ctx, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Results, qt.IsNil)

	p, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Status, qt.Equals, types.PollClosed)
	c.Assert(p.ClosedAt, qt.IsNotNil)
	c.Assert(p.Results, qt.DeepEquals, []uint64{0, 0})
	hash, err := ResultsHash([]uint64{0, 0})
	c.Assert(err, qt.IsNil)
	c.Assert(p.ResultsHash.MathBigInt().Cmp(hash), qt.Equals, 0)

	_, err = e.svc.ClosePoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	_, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)

	all, err := e.svc.ListPolls(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 1)
	c.Assert(all[0].Results, qt.DeepEquals, []uint64{0, 0})
}

func TestCloseExpiredPolls(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()
	e.withClock(now)

	soon := now.Add(time.Minute)
	later := now.Add(time.Hour)
	var ids []string
	for _, ct := range []*time.Time{&soon, &later, nil} {
		p, err := e.svc.CreatePoll(ctx, testAdmin, &PollSetup{
			Question:     "expiring?",
			Options:      twoOptions(),
			Kind:         types.KindBlindToken,
			RequiredRole: testRole,
			CloseTime:    ct,
		})
		c.Assert(err, qt.IsNil)
		_, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
		c.Assert(err, qt.IsNil)
		ids = append(ids, p.ID)
	}

	n, err := e.svc.CloseExpiredPolls(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)

	e.withClock(now.Add(2 * time.Minute))
	n, err = e.svc.CloseExpiredPolls(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	want := []types.PollStatus{types.PollClosed, types.PollOpen, types.PollOpen}
	for i, id := range ids {
		p, err := e.svc.GetPoll(ctx, id)
		c.Assert(err, qt.IsNil)
		c.Assert(p.Status, qt.Equals, want[i])
	}

	// a DRAFT poll past its close time cannot be opened
	p, err := e.svc.CreatePoll(ctx, testAdmin, &PollSetup{
		Question:     "late?",
		Options:      twoOptions(),
		Kind:         types.KindBlindToken,
		RequiredRole: testRole,
		CloseTime:    &later,
	})
	c.Assert(err, qt.IsNil)
	e.withClock(now.Add(2 * time.Hour))
	_, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
}
