package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/config"
	"github.com/vocdoni/anonpoll/log"
)

// PollCloser closes the open polls whose close time has passed. It is
// implemented by *voting.Service.
type PollCloser interface {
	CloseExpiredPolls(ctx context.Context) (int, error)
}

// PollScheduler periodically closes the expired polls.
type PollScheduler struct {
	closer   PollCloser
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPollScheduler creates a PollScheduler. A non positive interval takes
// config.DefaultSchedulerInterval.
func NewPollScheduler(closer PollCloser, interval time.Duration) *PollScheduler {
	if interval <= 0 {
		interval = config.DefaultSchedulerInterval
	}
	return &PollScheduler{
		closer:   closer,
		interval: interval,
	}
}

// Start begins closing expired polls in background. It returns an error if
// the scheduler is already running.
func (ps *PollScheduler) Start(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	ps.cancel = cancel
	ps.done = make(chan struct{})
	go ps.run(ctx, ps.done)
	return nil
}

// Stop halts the scheduler and waits for the running round to finish.
func (ps *PollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cancel != nil {
		ps.cancel()
		<-ps.done
		ps.cancel = nil
	}
}

func (ps *PollScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()
	for {
		ps.closeExpired(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (ps *PollScheduler) closeExpired(ctx context.Context) {
	n, err := ps.closer.CloseExpiredPolls(ctx)
	if err != nil {
		log.Warnw("failed to close expired polls", "error", err.Error())
	}
	if n > 0 {
		log.Infow("expired polls closed", "count", n)
	}
}
