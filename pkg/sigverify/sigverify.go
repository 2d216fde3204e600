// Copyright 2025 Certen Protocol
//
// Package sigverify verifies ECDSA signatures over secp256k1 against
// compressed public keys, the signature scheme used by the signer registry.

package sigverify

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrMalformedPublicKey is returned when the hex-encoded public key is not a
// valid compressed secp256k1 point.
var ErrMalformedPublicKey = errors.New("sigverify: malformed public key")

// ErrMalformedSignature is returned when the signature bytes do not parse as
// a valid DER-encoded ECDSA signature.
var ErrMalformedSignature = errors.New("sigverify: malformed signature")

// Verify checks a DER-encoded ECDSA signature over secp256k1 against a
// compressed public key and a 32-byte message hash. It returns (false, nil)
// for any well-formed-but-invalid signature, and a non-nil error only when
// an input is structurally malformed, so callers can distinguish
// "rejected" from "could not be evaluated."
func Verify(compressedPubKeyHex string, hash []byte, derSignature []byte) (bool, error) {
	if len(hash) != 32 {
		return false, fmt.Errorf("sigverify: hash must be 32 bytes, got %d", len(hash))
	}

	pubKeyBytes, err := hex.DecodeString(compressedPubKeyHex)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedPublicKey, err)
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedPublicKey, err)
	}

	sig, err := ecdsa.ParseDERSignature(derSignature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	return sig.Verify(hash, pubKey), nil
}

// Sign produces a low-S-normalized DER-encoded ECDSA signature over the
// given 32-byte hash using the provided private key.
func Sign(privKey *btcec.PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("sigverify: hash must be 32 bytes, got %d", len(hash))
	}
	sig := ecdsa.Sign(privKey, hash)
	return sig.Serialize(), nil
}
