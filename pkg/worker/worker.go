// Copyright 2025 Certen Protocol
//
// Package worker implements the single-job worker loop (C8): a low-volume
// path that pulls one queued job at a time, independent of the batch
// collector/broadcaster in pkg/batch. The cooperative stopCh/doneCh loop
// idiom is lifted from the teacher's batch scheduler.

package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/pipeline"
)

// DefaultPollInterval is how often the worker checks for a queued job when
// the queue is empty.
const DefaultPollInterval = 1 * time.Second

// Worker runs the single-job admission-to-broadcast loop.
type Worker struct {
	mu sync.Mutex

	jobs         *database.JobRepository
	deps         *pipeline.Dependencies
	pollInterval time.Duration
	logger       *log.Logger

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Worker. pollInterval defaults to DefaultPollInterval when
// zero.
func New(jobs *database.JobRepository, deps *pipeline.Dependencies, pollInterval time.Duration, logger *log.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[worker] ", log.LstdFlags)
	}
	return &Worker{
		jobs:         jobs,
		deps:         deps,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start begins the loop in a background goroutine. Safe to call once; a
// second call while running is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.run(ctx)
	w.logger.Printf("worker started (poll=%s)", w.pollInterval)
}

// Stop signals the loop to exit and waits for it to drain its current
// iteration.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.running = false
	w.mu.Unlock()

	<-w.doneCh
	w.logger.Println("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick claims and fully processes at most one job. Errors are logged, not
// returned, so the loop keeps running.
func (w *Worker) tick(ctx context.Context) {
	job, err := w.jobs.ClaimOneQueued(ctx)
	if err != nil {
		w.logger.Printf("claim one queued: %v", err)
		return
	}
	if job == nil {
		return
	}

	if err := pipeline.Attempt(ctx, w.deps, *job, database.JobStatusProcessing, nil); err != nil {
		w.logger.Printf("job %s: %v", job.JobID, err)
	}
}
