// Copyright 2025 Certen Protocol
//
// Broadcaster loop (C9): a single logical consumer that picks the oldest
// active batch and drains it job-by-job in ascending batch_seq via
// pipeline.Attempt, which reserves a UTXO, builds the transaction, then
// acquires one rate-limit token immediately before broadcasting — the only
// throttling point in the drain. A job that fails reservation or build never
// reaches the limiter. A newer batch is never touched until the older one is
// fully drained (both sent and failed are terminal).

package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/pipeline"
)

// DefaultIdleInterval is how long the broadcaster sleeps when no batch is
// active before checking again.
const DefaultIdleInterval = 500 * time.Millisecond

// Broadcaster continuously drains active batches in order, rate-limited by
// a TokenBucket.
type Broadcaster struct {
	mu sync.Mutex

	jobs         *database.JobRepository
	deps         *pipeline.Dependencies
	limiter      *TokenBucket
	idleInterval time.Duration
	logger       *log.Logger

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBroadcaster constructs a Broadcaster against the given rate limiter.
func NewBroadcaster(jobs *database.JobRepository, deps *pipeline.Dependencies, limiter *TokenBucket, logger *log.Logger) (*Broadcaster, error) {
	if jobs == nil {
		return nil, ErrNilJobRepository
	}
	if deps == nil {
		return nil, ErrNilDependencies
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[broadcaster] ", log.LstdFlags)
	}
	return &Broadcaster{
		jobs:         jobs,
		deps:         deps,
		limiter:      limiter,
		idleInterval: DefaultIdleInterval,
		logger:       logger,
	}, nil
}

// Start begins the loop in a background goroutine.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrBroadcasterRunning
	}
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.running = true

	go b.run(ctx)
	b.logger.Println("broadcaster started")
	return nil
}

// Stop signals the loop to exit and waits for the current iteration to
// finish.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	close(b.stopCh)
	b.running = false
	b.mu.Unlock()

	<-b.doneCh
	b.logger.Println("broadcaster stopped")
}

func (b *Broadcaster) run(ctx context.Context) {
	defer close(b.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		default:
		}

		batchID, err := b.jobs.OldestActiveBatch(ctx)
		if err != nil {
			b.logger.Printf("oldest active batch: %v", err)
			b.sleep(ctx)
			continue
		}
		if batchID == "" {
			b.sleep(ctx)
			continue
		}

		b.drain(ctx, batchID)
	}
}

// drain processes batchID job-by-job in ascending batch_seq until
// ClaimNextInBatch reports the batch is empty, then closes it.
func (b *Broadcaster) drain(ctx context.Context, batchID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		default:
		}

		job, err := b.jobs.ClaimNextInBatch(ctx, batchID)
		if err != nil {
			b.logger.Printf("batch %s: claim next: %v", batchID, err)
			return
		}
		if job == nil {
			if err := b.jobs.CloseBatch(ctx, batchID); err != nil {
				b.logger.Printf("batch %s: close: %v", batchID, err)
			}
			return
		}

		var limiter pipeline.RateLimiter
		if b.limiter != nil {
			limiter = b.limiter
		}
		if err := pipeline.Attempt(ctx, b.deps, *job, database.JobStatusSending, limiter); err != nil {
			b.logger.Printf("batch %s: job %s: %v", batchID, job.JobID, err)
		}
	}
}

func (b *Broadcaster) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(b.idleInterval):
	}
}
