// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for database operations
var (
	// ErrNotFound is returned when a requested entity is not found in the database
	ErrNotFound = errors.New("entity not found")

	// ErrJobNotFound is returned when a publish job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrSignerNotFound is returned when a registered signer is not found
	ErrSignerNotFound = errors.New("signer not found")

	// ErrReplayDetected is returned when a (pubkey, nonce) pair has already been seen
	ErrReplayDetected = errors.New("nonce already used for this signer")

	// ErrUTXONotFound is returned when a UTXO id matches no row
	ErrUTXONotFound = errors.New("utxo not found")

	// ErrNoCapacity names the "pool has no available input" condition. No
	// repository returns it: Reserve reports that case as a nil UTXO and nil error
	ErrNoCapacity = errors.New("no available utxo capacity")

	// ErrTransitionConflict names the case where a conditional status transition
	// did not apply because the row was no longer in the expected "from" state.
	// No repository returns it: Transition reports that case as (false, nil)
	ErrTransitionConflict = errors.New("job status transition did not apply")
)
