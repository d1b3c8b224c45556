package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/processor"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
)

// VoteProcessorService runs the verification of deferred semaphore votes
// next to the API, sharing its storage.
type VoteProcessorService struct {
	processor *processor.VerifyProcessor
	mu        sync.Mutex
	running   bool
}

// NewVoteProcessor creates a VoteProcessorService. Non positive workers or
// timeout take the processor defaults.
func NewVoteProcessor(stg *storage.Storage, verifier semaphore.Verifier, workers int, timeout time.Duration) *VoteProcessorService {
	return &VoteProcessorService{
		processor: processor.New(stg, verifier, workers, timeout),
	}
}

// Start launches the verification workers. Votes reserved by a previous run
// that did not finish are verified again.
func (vps *VoteProcessorService) Start(ctx context.Context) error {
	vps.mu.Lock()
	defer vps.mu.Unlock()
	if vps.running {
		return fmt.Errorf("vote processor service already running")
	}
	if err := vps.processor.Start(ctx); err != nil {
		return fmt.Errorf("cannot start vote processor: %w", err)
	}
	vps.running = true
	return nil
}

// Running reports whether the workers are running.
func (vps *VoteProcessorService) Running() bool {
	vps.mu.Lock()
	defer vps.mu.Unlock()
	return vps.running
}

// Stop halts the workers, waiting for the in flight verifications.
func (vps *VoteProcessorService) Stop() {
	vps.mu.Lock()
	defer vps.mu.Unlock()
	if !vps.running {
		return
	}
	if err := vps.processor.Stop(); err != nil {
		log.Warnw("vote processor stopped with error", "error", err.Error())
	}
	vps.running = false
	log.Infow("vote processor service stopped")
}
