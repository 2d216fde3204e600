// Copyright 2025 Certen Protocol
//
// Package pool wraps the UTXO repository with the reservation semantics of
// the pool manager (C5): sweep expired leases, select the smallest eligible
// input, reserve it, and track spend/dirty/release outcomes.

package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/anchorsvc/pkg/database"
)

// UTXO is the narrow reserved-input view handed to the transaction builder.
// Field names are grounded on the pack's UTXO-store conventions: TxID/Vout
// identify the outpoint, Satoshis/LockingScript/Address describe the output.
type UTXO struct {
	ID            int64
	TxID          string
	Vout          int
	Satoshis      int64
	LockingScript []byte
	Address       string
}

// Manager is the atomic reservation engine over a finite pool of single-use
// publish inputs.
type Manager struct {
	repo          *database.UTXORepository
	leaseDuration time.Duration
}

// NewManager constructs a Manager against the given repository and lease
// duration. The duration is used as given; config.Load supplies the
// 5-minute default.
func NewManager(repo *database.UTXORepository, leaseDuration time.Duration) *Manager {
	return &Manager{repo: repo, leaseDuration: leaseDuration}
}

// Reserve sweeps expired leases, selects the smallest-satoshis eligible
// input (oldest first as tiebreaker), and reserves it with a fresh lease.
// Returns nil, nil when the pool has no available input (NoCapacity).
func (m *Manager) Reserve(ctx context.Context) (*UTXO, error) {
	reserved, err := m.repo.Reserve(ctx, m.leaseDuration)
	if err != nil {
		return nil, fmt.Errorf("pool: reserve: %w", err)
	}
	if reserved == nil {
		return nil, nil
	}
	return &UTXO{
		ID:            reserved.ID,
		TxID:          reserved.TxID,
		Vout:          reserved.Vout,
		Satoshis:      reserved.Satoshis,
		LockingScript: reserved.LockingScript,
		Address:       reserved.Address,
	}, nil
}

// MarkSpent records a reserved UTXO as irreversibly spent by a broadcast
// ledger transaction id.
func (m *Manager) MarkSpent(ctx context.Context, utxoID int64, ledgerTxID string) error {
	if err := m.repo.MarkSpent(ctx, utxoID, ledgerTxID); err != nil {
		return fmt.Errorf("pool: mark spent: %w", err)
	}
	return nil
}

// Release returns a reserved UTXO to available on transient/permanent
// broadcast or build failure.
func (m *Manager) Release(ctx context.Context, utxoID int64) error {
	if err := m.repo.Release(ctx, utxoID); err != nil {
		return fmt.Errorf("pool: release: %w", err)
	}
	return nil
}

// MarkDirty returns a reserved UTXO to available but excludes it from future
// selection because the ledger reported a mempool conflict.
func (m *Manager) MarkDirty(ctx context.Context, utxoID int64) error {
	if err := m.repo.MarkDirty(ctx, utxoID); err != nil {
		return fmt.Errorf("pool: mark dirty: %w", err)
	}
	return nil
}

// Stats reports pool depth for the replenisher's threshold check.
func (m *Manager) Stats(ctx context.Context, unitValueSatoshis int64) (*database.PoolStats, error) {
	stats, err := m.repo.Stats(ctx, unitValueSatoshis)
	if err != nil {
		return nil, fmt.Errorf("pool: stats: %w", err)
	}
	return stats, nil
}

// LargestFundingInput fetches the full row for the UTXO with the given id
// (the largest funding/change input identified by Stats). It returns an
// error wrapping database.ErrUTXONotFound when no row has that id.
func (m *Manager) LargestFundingInput(ctx context.Context, id int64) (*database.UTXO, error) {
	u, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pool: largest funding input: %w", err)
	}
	return u, nil
}

// Insert adds a new pool input (bootstrap or post-split output).
func (m *Manager) Insert(ctx context.Context, u database.NewUTXO) (int64, error) {
	id, err := m.repo.Insert(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("pool: insert: %w", err)
	}
	return id, nil
}
