package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

type countingCloser struct {
	calls atomic.Int32
	fail  bool
}

func (cc *countingCloser) CloseExpiredPolls(context.Context) (int, error) {
	cc.calls.Add(1)
	if cc.fail {
		return 0, errors.New("storage unavailable")
	}
	return 1, nil
}

func TestPollScheduler(t *testing.T) {
	c := qt.New(t)
	closer := &countingCloser{}
	scheduler := NewPollScheduler(closer, 10*time.Millisecond)

	ctx := context.Background()
	c.Assert(scheduler.Start(ctx), qt.IsNil)
	c.Assert(scheduler.Start(ctx), qt.ErrorMatches, "service already running")

	deadline := time.Now().Add(5 * time.Second)
	for closer.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(closer.calls.Load() >= 3, qt.IsTrue)

	scheduler.Stop()
	calls := closer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	c.Assert(closer.calls.Load(), qt.Equals, calls)

	// it can be started again after a stop
	c.Assert(scheduler.Start(ctx), qt.IsNil)
	scheduler.Stop()
	scheduler.Stop()
}

func TestPollSchedulerKeepsRunningOnErrors(t *testing.T) {
	c := qt.New(t)
	closer := &countingCloser{fail: true}
	scheduler := NewPollScheduler(closer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	c.Assert(scheduler.Start(ctx), qt.IsNil)
	deadline := time.Now().Add(5 * time.Second)
	for closer.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(closer.calls.Load() >= 2, qt.IsTrue)

	// cancelling the parent context also stops the loop
	cancel()
	scheduler.Stop()
}
