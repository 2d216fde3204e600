// Copyright 2025 Certen Protocol
//
// Collector loop (C9): every window, claims up to MaxBatchSize oldest queued
// jobs into a single new batch with dense ascending sequence numbers. The
// cooperative stopCh/doneCh/ticker idiom is lifted from the teacher's batch
// scheduler.

package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/anchorsvc/pkg/database"
)

// DefaultWindow is the default collector cadence (spec default 5000ms).
const DefaultWindow = 5 * time.Second

// DefaultMaxBatchSize is the default number of jobs claimed per window.
const DefaultMaxBatchSize = 500

// Collector periodically claims queued jobs into batches for the
// Broadcaster to drain in order.
type Collector struct {
	mu sync.Mutex

	jobs         *database.JobRepository
	window       time.Duration
	maxBatchSize int
	logger       *log.Logger

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCollector constructs a Collector. window and maxBatchSize default to
// DefaultWindow/DefaultMaxBatchSize when zero.
func NewCollector(jobs *database.JobRepository, window time.Duration, maxBatchSize int, logger *log.Logger) (*Collector, error) {
	if jobs == nil {
		return nil, ErrNilJobRepository
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[collector] ", log.LstdFlags)
	}
	return &Collector{
		jobs:         jobs,
		window:       window,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}, nil
}

// Start begins the loop in a background goroutine.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrCollectorRunning
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running = true

	go c.run(ctx)
	c.logger.Printf("collector started (window=%s, maxBatchSize=%d)", c.window, c.maxBatchSize)
	return nil
}

// Stop signals the loop to exit and waits for the current iteration to
// finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()

	<-c.doneCh
	c.logger.Println("collector stopped")
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			claimed, err := c.jobs.ClaimQueued(ctx, c.maxBatchSize)
			if err != nil {
				c.logger.Printf("claim queued: %v", err)
				continue
			}
			if len(claimed) > 0 {
				c.logger.Printf("claimed batch %s (%d jobs)", claimed[0].BatchID, len(claimed))
			}
		}
	}
}
