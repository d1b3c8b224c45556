// Package processor settles the semaphore votes cast in deferred polls. The
// votes are recorded PENDING by the voting service and a pool of workers
// verifies their proofs in background.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/crypto"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the number of concurrent verifications.
	DefaultWorkers = 2
	// DefaultTimeout bounds the verification of a single proof. A proof
	// not verified in time is rejected.
	DefaultTimeout = 30 * time.Second

	pollInterval = time.Second
)

// errTimeout is returned by verify when the proof could not be verified in
// time.
var errTimeout = errors.New("proof verification timed out")

// VerifyProcessor is a pool of workers that take pending votes from the
// storage queue, verify their proofs and mark them VERIFIED or REJECTED.
type VerifyProcessor struct {
	stg      *storage.Storage
	verifier semaphore.Verifier
	workers  int
	timeout  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a VerifyProcessor. Non positive workers or timeout take the
// defaults.
func New(stg *storage.Storage, verifier semaphore.Verifier, workers int, timeout time.Duration) *VerifyProcessor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &VerifyProcessor{
		stg:      stg,
		verifier: verifier,
		workers:  workers,
		timeout:  timeout,
	}
}

// Start launches the workers in background. Reservations left by a previous
// run are released first, so votes reserved by a stopped worker are verified
// again.
func (p *VerifyProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("processor already running")
	}
	if err := p.stg.ReleasePendingVoteReservations(); err != nil {
		return fmt.Errorf("failed to release pending vote reservations: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.work(ctx, i)
			return nil
		})
	}
	p.cancel = cancel
	p.group = g
	log.Infow("vote verification processor started", "workers", p.workers, "timeout", p.timeout.String())
	return nil
}

// Stop cancels the workers and waits for them to return. A vote being
// verified when Stop is called stays reserved and is picked up again on the
// next Start.
func (p *VerifyProcessor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	err := p.group.Wait()
	p.cancel = nil
	p.group = nil
	return err
}

// work processes pending votes until the context is cancelled, waiting for
// the next tick when the queue is drained.
func (p *VerifyProcessor) work(ctx context.Context, id int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.processNext(ctx)
		if err != nil {
			log.Errorw(err, "failed to process pending vote")
		}
		if processed {
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Debugw("vote verification worker stopped", "worker", id)
			return
		}
	}
}

// processNext verifies the next pending vote of the queue. It returns false
// if there was nothing to process.
func (p *VerifyProcessor) processNext(ctx context.Context) (bool, error) {
	pv, key, err := p.stg.NextPendingVote()
	if err != nil {
		if errors.Is(err, storage.ErrNoMoreElements) {
			return false, nil
		}
		return false, err
	}
	startTime := time.Now()
	err = p.verify(ctx, pv.Proof)
	if ctx.Err() != nil {
		// shutting down, the vote stays reserved until the next start
		return true, nil
	}
	verified := err == nil
	if !verified {
		log.Debugw("rejecting pending vote", "poll", pv.PollID, "error", err.Error())
	}
	rec, err := p.stg.MarkPendingVoteDone(key, verified)
	if err != nil {
		return true, fmt.Errorf("mark pending vote done: %w", err)
	}
	log.Debugw("pending vote processed",
		"poll", rec.PollID,
		"status", rec.Status,
		"took", time.Since(startTime).String())
	if rec.Status == types.VoteVerified {
		voteKey, err := crypto.FieldBytes(rec.Nullifier.MathBigInt())
		if err != nil {
			return true, err
		}
		if err := p.stg.Receipts().Add(rec.PollID, voteKey, rec.Option); err != nil {
			log.Warnw("cannot add vote receipt", "poll", rec.PollID, "error", err.Error())
		}
	}
	return true, nil
}

// verify checks the proof, giving up after the processor timeout. The
// verification keeps running in background after a timeout but its result
// is discarded.
func (p *VerifyProcessor) verify(ctx context.Context, proof *semaphore.Proof) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- semaphore.VerifyProof(p.verifier, proof)
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errTimeout
		}
		return ctx.Err()
	}
}
