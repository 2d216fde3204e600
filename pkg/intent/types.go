// Copyright 2025 Certen Protocol
//
// Package intent defines the publishing intent envelope and the ordered
// validation pipeline that admits it into the job store.

package intent

import "encoding/json"

const (
	ProtocolTag     = "sl-drm"
	ProtocolVersion = 1
)

// EventKind enumerates the record's event type.
type EventKind string

const (
	EventRegister    EventKind = "REGISTER"
	EventUpdate      EventKind = "UPDATE"
	EventAssign      EventKind = "ASSIGN"
	EventSplitChange EventKind = "SPLIT_CHANGE"
)

// Owner is a party with a basis-point share of a record.
type Owner struct {
	PartyID string `json:"partyId"`
	Role    string `json:"role"`
	Share   int    `json:"share"` // basis points; owners' shares sum to 10000 when enforced
}

// DistributionHint optionally points at externally hosted content.
type DistributionHint struct {
	URI          string `json:"uri,omitempty"`
	ContentHash  string `json:"contentHash,omitempty"`
}

// Terms carries territory and rights-set metadata.
type Terms struct {
	Territory string   `json:"territory"`
	Rights    []string `json:"rights"`
}

// Record is the signed body: the canonicalization and hashing subtree.
type Record struct {
	RecordID         string            `json:"recordId"`
	Kind             EventKind         `json:"kind"`
	AssetType        string            `json:"assetType"`
	Owners           []Owner           `json:"owners"`
	DistributionHint *DistributionHint `json:"distributionHint,omitempty"`
	Terms            Terms             `json:"terms"`
	Timestamp        int64             `json:"timestamp"` // unix seconds
	Nonce            string            `json:"nonce"`
}

// Signer identifies the submitting key.
type Signer struct {
	PublicKey string `json:"pubkey"` // compressed secp256k1, hex
}

// Signature carries the signing algorithm tag and the DER-encoded signature.
type Signature struct {
	Alg      string `json:"alg"`      // e.g. "ecdsa-secp256k1"
	HashName string `json:"hash"`     // e.g. "sha256"
	Sig      string `json:"sig"`      // hex-encoded DER signature
}

// Envelope is the full publishing intent as submitted to the admission API.
// This is the structured {signer, signature} shape; the flatter
// {publickey, signature, nonce, record} shape seen elsewhere in the
// ecosystem is intentionally not accepted (see validateEnvelopeShape in
// validator.go).
type Envelope struct {
	Protocol  string          `json:"protocol"`
	Version   int             `json:"version"`
	Record    json.RawMessage `json:"record"`
	SignerRaw Signer          `json:"signer"`
	Signature Signature       `json:"signature"`
}
