// Copyright 2025 Certen Protocol
//
// Package replenish implements the pool depth monitor (C10): a slow-cadence
// loop that splits a large funding/change input into fresh unit-value
// publish inputs whenever the pool runs low, subject to a cooldown that
// prevents thrash during high-broadcast windows.

package replenish

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"

	"github.com/certen/anchorsvc/pkg/broadcast"
	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/pool"
	"github.com/certen/anchorsvc/pkg/txbuilder"
)

const (
	// DefaultCheckInterval is the monitor cadence (spec default 30s).
	DefaultCheckInterval = 30 * time.Second
	// DefaultMinPoolSize is the available-publish-input floor that triggers
	// a split (spec default 50000).
	DefaultMinPoolSize = 50000
	// DefaultSplitTarget is the number of fresh unit-value outputs minted
	// per split (spec default 100000).
	DefaultSplitTarget = 100000
	// DefaultCooldown is the minimum time between splits (spec default 10m).
	DefaultCooldown = 10 * time.Minute
)

// Config bundles the replenisher's tunables.
type Config struct {
	CheckInterval     time.Duration
	MinPoolSize       int64
	SplitTarget       int
	Cooldown          time.Duration
	UnitValueSatoshis int64
	FeeRateSatsPerKB  int64
	ChangeAddress     btcutil.Address
	SigningKey        *btcec.PrivateKey
}

// Monitor runs the pool depth check loop.
type Monitor struct {
	mu sync.Mutex

	pool        *pool.Manager
	broadcaster *broadcast.Client
	cfg         Config
	logger      *log.Logger

	lastSplit time.Time
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New constructs a Monitor, defaulting unset CheckInterval, MinPoolSize,
// SplitTarget and Cooldown. The other Config fields are used as given.
func New(mgr *pool.Manager, bc *broadcast.Client, cfg Config, logger *log.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.MinPoolSize <= 0 {
		cfg.MinPoolSize = DefaultMinPoolSize
	}
	if cfg.SplitTarget <= 0 {
		cfg.SplitTarget = DefaultSplitTarget
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[replenish] ", log.LstdFlags)
	}
	return &Monitor{
		pool:        mgr,
		broadcaster: bc,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start begins the loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	go m.run(ctx)
	m.logger.Printf("replenisher started (interval=%s, minPoolSize=%d, cooldown=%s)", m.cfg.CheckInterval, m.cfg.MinPoolSize, m.cfg.Cooldown)
}

// Stop signals the loop to exit and waits for the current iteration to
// finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	<-m.doneCh
	m.logger.Println("replenisher stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check reads pool statistics and splits a funding input if the pool is
// below MinPoolSize and the cooldown has elapsed.
func (m *Monitor) check(ctx context.Context) {
	stats, err := m.pool.Stats(ctx, m.cfg.UnitValueSatoshis)
	if err != nil {
		m.logger.Printf("stats: %v", err)
		return
	}

	if stats.AvailablePublishCount >= m.cfg.MinPoolSize {
		return
	}

	m.mu.Lock()
	sinceLast := time.Since(m.lastSplit)
	m.mu.Unlock()
	if !m.lastSplit.IsZero() && sinceLast < m.cfg.Cooldown {
		return
	}

	if !stats.LargestFundingID.Valid {
		m.logger.Printf("capacity alarm: available publish inputs %d below minimum %d and no funding input available", stats.AvailablePublishCount, m.cfg.MinPoolSize)
		return
	}

	input, err := m.pool.LargestFundingInput(ctx, stats.LargestFundingID.Int64)
	if err != nil {
		m.logger.Printf("largest funding input: %v", err)
		return
	}

	built, err := txbuilder.BuildSplit(input, m.cfg.SplitTarget, m.cfg.UnitValueSatoshis, m.cfg.ChangeAddress, m.cfg.SigningKey, m.cfg.FeeRateSatsPerKB)
	if err != nil {
		m.logger.Printf("build split: %v", err)
		return
	}

	outcome, err := m.broadcaster.Send(ctx, built.RawTx)
	if err != nil {
		m.logger.Printf("broadcast split: %v", err)
		return
	}
	if outcome.Kind != broadcast.Success {
		m.logger.Printf("split broadcast rejected: kind=%s detail=%s", outcome.Kind, outcome.Detail)
		return
	}

	if err := m.pool.MarkSpent(ctx, input.ID, outcome.TxID); err != nil {
		m.logger.Printf("mark split source spent: %v", err)
		return
	}

	for i := 0; i < m.cfg.SplitTarget; i++ {
		if _, err := m.pool.Insert(ctx, database.NewUTXO{
			TxID:          outcome.TxID,
			Vout:          i,
			Satoshis:      m.cfg.UnitValueSatoshis,
			LockingScript: input.LockingScript,
			Address:       input.Address,
			Purpose:       database.UTXOPurposePublish,
		}); err != nil {
			m.logger.Printf("insert split output %d: %v", i, err)
		}
	}

	changeValue := input.Satoshis - m.cfg.UnitValueSatoshis*int64(m.cfg.SplitTarget) - built.FeeSats
	if changeValue > 0 {
		if _, err := m.pool.Insert(ctx, database.NewUTXO{
			TxID:          outcome.TxID,
			Vout:          m.cfg.SplitTarget,
			Satoshis:      changeValue,
			LockingScript: input.LockingScript,
			Address:       input.Address,
			Purpose:       database.UTXOPurposeChange,
		}); err != nil {
			m.logger.Printf("insert split change output: %v", err)
		}
	}

	m.mu.Lock()
	m.lastSplit = time.Now()
	m.mu.Unlock()
	m.logger.Printf("split complete: txid=%s minted=%d unit inputs", outcome.TxID, m.cfg.SplitTarget)
}
