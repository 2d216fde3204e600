// Copyright 2025 Certen Protocol
//
// Batch package errors

package batch

import "errors"

// Common errors for the batch package
var (
	ErrNilJobRepository   = errors.New("job repository cannot be nil")
	ErrNilDependencies    = errors.New("pipeline dependencies cannot be nil")
	ErrCollectorRunning   = errors.New("collector is already running")
	ErrBroadcasterRunning = errors.New("broadcaster is already running")
)
