// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"fmt"
)

// NonceRepository provides read-only access to seen (pubkey, nonce) pairs.
// Insertion happens only inside JobRepository.Admit's transactional boundary,
// never here, so that validation stays side-effect-free up to signer lookup.
type NonceRepository struct {
	client *Client
}

// NewNonceRepository constructs a NonceRepository.
func NewNonceRepository(client *Client) *NonceRepository {
	return &NonceRepository{client: client}
}

// NonceSeen implements intent.NonceChecker.
func (r *NonceRepository) NonceSeen(ctx context.Context, publicKey, nonce string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM nonce_records WHERE public_key = $1 AND nonce = $2)`
	var exists bool
	if err := r.client.QueryRowContext(ctx, query, publicKey, nonce).Scan(&exists); err != nil {
		return false, fmt.Errorf("check nonce: %w", err)
	}
	return exists, nil
}
