// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// SignerRepository manages the registered signer table.
type SignerRepository struct {
	client *Client
}

// NewSignerRepository constructs a SignerRepository.
func NewSignerRepository(client *Client) *SignerRepository {
	return &SignerRepository{client: client}
}

// Register inserts a new signer with status = active. Public keys are
// unique; a duplicate registration is the caller's responsibility to avoid
// (this is an external admin path, out of the hot admission pipeline).
func (r *SignerRepository) Register(ctx context.Context, params NewSigner) (*Signer, error) {
	query := `
		INSERT INTO signers (public_key, status, policy, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, public_key, status, policy, created_at, updated_at
	`
	var policy sql.NullString
	if params.Policy != "" {
		policy = sql.NullString{String: params.Policy, Valid: true}
	}

	var s Signer
	err := r.client.QueryRowContext(ctx, query, params.PublicKey, SignerStatusActive, policy).
		Scan(&s.ID, &s.PublicKey, &s.Status, &s.Policy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("register signer: %w", err)
	}
	return &s, nil
}

// Get retrieves a signer by public key.
func (r *SignerRepository) Get(ctx context.Context, publicKey string) (*Signer, error) {
	query := `
		SELECT id, public_key, status, policy, created_at, updated_at
		FROM signers WHERE public_key = $1
	`
	var s Signer
	err := r.client.QueryRowContext(ctx, query, publicKey).
		Scan(&s.ID, &s.PublicKey, &s.Status, &s.Policy, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSignerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signer: %w", err)
	}
	return &s, nil
}

// IsActiveSigner implements intent.SignerLookup: true iff the public key is
// registered with status = active.
func (r *SignerRepository) IsActiveSigner(ctx context.Context, publicKey string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM signers WHERE public_key = $1 AND status = $2)`
	var exists bool
	if err := r.client.QueryRowContext(ctx, query, publicKey, SignerStatusActive).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active signer: %w", err)
	}
	return exists, nil
}

// Revoke transitions a signer to revoked. Monotonic: active -> revoked only.
func (r *SignerRepository) Revoke(ctx context.Context, publicKey string) error {
	query := `
		UPDATE signers SET status = $1, updated_at = now()
		WHERE public_key = $2 AND status = $3
	`
	res, err := r.client.ExecContext(ctx, query, SignerStatusRevoked, publicKey, SignerStatusActive)
	if err != nil {
		return fmt.Errorf("revoke signer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke signer: %w", err)
	}
	if n == 0 {
		return ErrSignerNotFound
	}
	return nil
}
