// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UTXORepository is the atomic reservation engine over the pool of
// single-use inputs (C5 in the component design).
type UTXORepository struct {
	client *Client
}

// NewUTXORepository constructs a UTXORepository.
func NewUTXORepository(client *Client) *UTXORepository {
	return &UTXORepository{client: client}
}

// Reserve executes the full reservation sequence as one transaction: sweep
// expired leases back to available, select the smallest eligible row with a
// skip-locked read, and mark it reserved with a fresh lease. Returns nil,
// nil when no input is available.
func (r *UTXORepository) Reserve(ctx context.Context, leaseDuration time.Duration) (*ReservedUTXO, error) {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `
		UPDATE utxos
		SET status = $1, reserved_at = NULL, reserved_until = NULL
		WHERE status = $2 AND reserved_until < now()
	`, UTXOStatusAvailable, UTXOStatusReserved); err != nil {
		return nil, fmt.Errorf("reserve: sweep expired leases: %w", err)
	}

	row := tx.Tx().QueryRowContext(ctx, `
		SELECT id, txid, vout, satoshis, locking_script, address
		FROM utxos
		WHERE purpose = $1 AND status = $2 AND (dirty IS FALSE OR dirty IS NULL)
		ORDER BY satoshis ASC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, UTXOPurposePublish, UTXOStatusAvailable)

	var u ReservedUTXO
	err = row.Scan(&u.ID, &u.TxID, &u.Vout, &u.Satoshis, &u.LockingScript, &u.Address)
	if errors.Is(err, sql.ErrNoRows) {
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, fmt.Errorf("reserve: commit sweep: %w", commitErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve: select candidate: %w", err)
	}

	if _, err := tx.Tx().ExecContext(ctx, `
		UPDATE utxos
		SET status = $1, reserved_at = now(), reserved_until = now() + $2::interval
		WHERE id = $3
	`, UTXOStatusReserved, fmt.Sprintf("%d seconds", int(leaseDuration.Seconds())), u.ID); err != nil {
		return nil, fmt.Errorf("reserve: mark reserved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reserve: commit: %w", err)
	}
	return &u, nil
}

// MarkSpent marks a UTXO spent. Irreversible.
func (r *UTXORepository) MarkSpent(ctx context.Context, utxoID int64, ledgerTxID string) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE utxos
		SET status = $1, spent_at = now(), spent_by_transaction_id = $2
		WHERE id = $3
	`, UTXOStatusSpent, ledgerTxID, utxoID)
	if err != nil {
		return fmt.Errorf("mark spent: %w", err)
	}
	return checkRowsAffected(res, "mark spent")
}

// Release returns a reserved UTXO to available, clearing reservation fields.
// Used on transient/permanent broadcast failure and build failure.
func (r *UTXORepository) Release(ctx context.Context, utxoID int64) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE utxos
		SET status = $1, reserved_at = NULL, reserved_until = NULL
		WHERE id = $2
	`, UTXOStatusAvailable, utxoID)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return checkRowsAffected(res, "release")
}

// MarkDirty returns a UTXO to available but flagged dirty, excluding it from
// future selection until out-of-band reconciliation. Used when the ledger
// reports the input already appears in a mempool transaction.
func (r *UTXORepository) MarkDirty(ctx context.Context, utxoID int64) error {
	res, err := r.client.ExecContext(ctx, `
		UPDATE utxos
		SET status = $1, dirty = TRUE, reserved_at = NULL, reserved_until = NULL
		WHERE id = $2
	`, UTXOStatusAvailable, utxoID)
	if err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return checkRowsAffected(res, "mark dirty")
}

// Insert adds a new pool input, used by bootstrap and by the replenisher
// after a successful split broadcast.
func (r *UTXORepository) Insert(ctx context.Context, u NewUTXO) (int64, error) {
	var id int64
	err := r.client.QueryRowContext(ctx, `
		INSERT INTO utxos (txid, vout, satoshis, locking_script, address, purpose, status, dirty, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, now())
		RETURNING id
	`, u.TxID, u.Vout, u.Satoshis, u.LockingScript, u.Address, u.Purpose, UTXOStatusAvailable).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert utxo: %w", err)
	}
	return id, nil
}

// PoolStats summarizes pool depth for the replenisher's threshold check.
type PoolStats struct {
	AvailablePublishCount int64
	LargestFundingID      sql.NullInt64
	LargestFundingSats    sql.NullInt64
}

// Stats reports the count of available unit-value publish inputs and the
// largest available funding/change input, if any.
func (r *UTXORepository) Stats(ctx context.Context, unitValueSatoshis int64) (*PoolStats, error) {
	var stats PoolStats
	err := r.client.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM utxos
		WHERE purpose = $1 AND status = $2 AND satoshis = $3 AND (dirty IS FALSE OR dirty IS NULL)
	`, UTXOPurposePublish, UTXOStatusAvailable, unitValueSatoshis).Scan(&stats.AvailablePublishCount)
	if err != nil {
		return nil, fmt.Errorf("pool stats: count: %w", err)
	}

	err = r.client.QueryRowContext(ctx, `
		SELECT id, satoshis FROM utxos
		WHERE purpose IN ($1, $2) AND status = $3 AND (dirty IS FALSE OR dirty IS NULL)
		ORDER BY satoshis DESC
		LIMIT 1
	`, UTXOPurposeFunding, UTXOPurposeChange, UTXOStatusAvailable).Scan(&stats.LargestFundingID, &stats.LargestFundingSats)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool stats: largest funding input: %w", err)
	}

	return &stats, nil
}

// Get retrieves a single UTXO by surrogate id, used by the replenisher to
// fetch full details of the largest funding input before building a split.
func (r *UTXORepository) Get(ctx context.Context, id int64) (*UTXO, error) {
	var u UTXO
	err := r.client.QueryRowContext(ctx, `
		SELECT id, txid, vout, satoshis, locking_script, address, purpose, status, dirty,
			reserved_at, reserved_until, spent_at, spent_by_transaction_id, created_at
		FROM utxos WHERE id = $1
	`, id).Scan(&u.ID, &u.TxID, &u.Vout, &u.Satoshis, &u.LockingScript, &u.Address, &u.Purpose, &u.Status,
		&u.Dirty, &u.ReservedAt, &u.ReservedUntil, &u.SpentAt, &u.SpentByTransactionID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUTXONotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get utxo: %w", err)
	}
	return &u, nil
}

func checkRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUTXONotFound)
	}
	return nil
}
