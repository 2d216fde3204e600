// Copyright 2025 Certen Protocol
//
// Package signingkey loads the server's process-wide secp256k1 signing key
// from configuration at startup. The key is an immutable shared resource for
// the lifetime of the process; every job built by the transaction builder
// signs with the same key.

package signingkey

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Load reads a hex-encoded 32-byte secp256k1 private key from path and
// parses it. The file may contain a trailing newline; it is trimmed.
func Load(path string) (*btcec.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signingkey: read %s: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	keyBytes, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("signingkey: %s is not valid hex: %w", path, err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("signingkey: %s must decode to 32 bytes, got %d", path, len(keyBytes))
	}

	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	return priv, nil
}
