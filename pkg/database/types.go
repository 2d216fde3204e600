// Copyright 2025 Certen Protocol
//
// Database Types for the anchoring service
// These types map directly to the PostgreSQL schema defined in migrations/001_init.sql

package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ============================================================================
// SIGNER TYPES
// ============================================================================

// SignerStatus represents the lifecycle state of a registered signer
type SignerStatus string

const (
	SignerStatusActive  SignerStatus = "active"
	SignerStatusRevoked SignerStatus = "revoked"
)

// Signer represents a registered signing identity authorized to submit intents
// Maps to: signers table
type Signer struct {
	ID        int64          `db:"id" json:"id"`
	PublicKey string         `db:"public_key" json:"publicKey"` // compressed secp256k1 pubkey, hex, 33 bytes
	Status    SignerStatus   `db:"status" json:"status"`
	Policy    sql.NullString `db:"policy" json:"policy,omitempty"` // opaque policy blob
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// ============================================================================
// NONCE TYPES
// ============================================================================

// NonceRecord marks a (signer, nonce) pair as seen; existence alone is the invariant
// Maps to: nonce_records table
type NonceRecord struct {
	ID        int64     `db:"id" json:"id"`
	PublicKey string    `db:"public_key" json:"publicKey"`
	Nonce     string    `db:"nonce" json:"nonce"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ============================================================================
// PUBLISH JOB TYPES
// ============================================================================

// JobStatus represents the lifecycle state of a publish job
type JobStatus string

const (
	JobStatusQueued          JobStatus = "queued"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusProcessingBatch JobStatus = "processing_batch"
	JobStatusSending         JobStatus = "sending"
	JobStatusSent            JobStatus = "sent"
	JobStatusFailed          JobStatus = "failed"
)

// ErrorCode enumerates the admission/worker error taxonomy recorded on job rows
type ErrorCode string

const (
	ErrorCodeInvalidSchema    ErrorCode = "InvalidSchema"
	ErrorCodeStaleTimestamp   ErrorCode = "StaleTimestamp"
	ErrorCodeReplayDetected   ErrorCode = "ReplayDetected"
	ErrorCodeInvalidSignature ErrorCode = "InvalidSignature"
	ErrorCodeUnknownSigner    ErrorCode = "UnknownSigner"
	ErrorCodeDuplicateRecord  ErrorCode = "DuplicateRecord"
	ErrorCodeNoCapacity       ErrorCode = "NoCapacity"
	ErrorCodeMempoolConflict  ErrorCode = "MempoolConflict"
	ErrorCodeTransientNetwork ErrorCode = "TransientNetwork"
	ErrorCodePermanentReject  ErrorCode = "PermanentReject"
	ErrorCodeBuildError       ErrorCode = "BuildError"
)

// PublishJob represents a single admitted publishing intent moving through
// the admission -> reservation -> broadcast pipeline.
// Maps to: publish_jobs table
type PublishJob struct {
	ID                int64          `db:"id" json:"id"`
	JobID             string         `db:"job_id" json:"jobId"`
	RecordID          string         `db:"record_id" json:"recordId"`
	RecordBody        json.RawMessage `db:"record_body" json:"recordBody"`
	RecordHash        string         `db:"record_hash" json:"recordHash"`
	SignerPublicKey   string         `db:"signer_public_key" json:"signerPublicKey"`
	Status            JobStatus      `db:"status" json:"status"`
	LedgerTxID        sql.NullString `db:"ledger_txid" json:"ledgerTxId,omitempty"`
	ErrorCode         sql.NullString `db:"error_code" json:"errorCode,omitempty"`
	ErrorDetail       sql.NullString `db:"error_detail" json:"errorDetail,omitempty"`
	BatchID           sql.NullString `db:"batch_id" json:"batchId,omitempty"`
	BatchSeq          sql.NullInt64  `db:"batch_seq" json:"batchSeq,omitempty"`
	SendingStartedAt  sql.NullTime   `db:"sending_started_at" json:"sendingStartedAt,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	SentAt            sql.NullTime   `db:"sent_at" json:"sentAt,omitempty"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// ============================================================================
// UTXO TYPES
// ============================================================================

// UTXOPurpose distinguishes pool inputs reserved for the data-carrier payload
// from larger funding/change inputs consumed by the replenisher.
type UTXOPurpose string

const (
	UTXOPurposePublish UTXOPurpose = "publish"
	UTXOPurposeFunding UTXOPurpose = "funding"
	UTXOPurposeChange  UTXOPurpose = "change"
)

// UTXOStatus represents the lifecycle state of a pool input
type UTXOStatus string

const (
	UTXOStatusAvailable UTXOStatus = "available"
	UTXOStatusReserved  UTXOStatus = "reserved"
	UTXOStatusSpent     UTXOStatus = "spent"
)

// UTXO represents a single-use pool input identified by (txid, vout)
// Maps to: utxos table
type UTXO struct {
	ID                  int64          `db:"id" json:"id"`
	TxID                string         `db:"txid" json:"txid"`
	Vout                int            `db:"vout" json:"vout"`
	Satoshis            int64          `db:"satoshis" json:"satoshis"`
	LockingScript        []byte         `db:"locking_script" json:"lockingScript"`
	Address             string         `db:"address" json:"address"`
	Purpose             UTXOPurpose    `db:"purpose" json:"purpose"`
	Status              UTXOStatus     `db:"status" json:"status"`
	Dirty               bool           `db:"dirty" json:"dirty"`
	ReservedAt          sql.NullTime   `db:"reserved_at" json:"reservedAt,omitempty"`
	ReservedUntil       sql.NullTime   `db:"reserved_until" json:"reservedUntil,omitempty"`
	SpentAt             sql.NullTime   `db:"spent_at" json:"spentAt,omitempty"`
	SpentByTransactionID sql.NullString `db:"spent_by_transaction_id" json:"spentByTransactionId,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"createdAt"`
}

// ReservedUTXO is the narrow view returned by Reserve(): enough for the
// transaction builder, nothing more.
type ReservedUTXO struct {
	ID            int64
	TxID          string
	Vout          int
	Satoshis      int64
	LockingScript []byte
	Address       string
}

// ============================================================================
// BATCH TYPES
// ============================================================================

// JobBatch represents a set of jobs claimed together for ordered broadcast.
// Maps to: job_batches table. The owning jobs reference it via job.batch_id;
// this row itself only tracks timing bookkeeping.
type JobBatch struct {
	BatchID     string       `db:"batch_id" json:"batchId"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	CompletedAt sql.NullTime `db:"completed_at" json:"completedAt,omitempty"`
}

// ============================================================================
// AUDIT EVENT TYPES
// ============================================================================

// AuditEvent is an append-only log entry describing a state-changing action
// Maps to: audit_events table
type AuditEvent struct {
	ID           int64           `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"eventType"`
	ActorPubKey  sql.NullString  `db:"actor_public_key" json:"actorPublicKey,omitempty"`
	ResourceType string          `db:"resource_type" json:"resourceType"`
	ResourceID   string          `db:"resource_id" json:"resourceId"`
	Action       string          `db:"action" json:"action"`
	Details      json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// ============================================================================
// HELPER TYPES FOR INSERT/UPDATE OPERATIONS
// ============================================================================

// NewSigner is used to register a new signer
type NewSigner struct {
	PublicKey string
	Policy    string // optional
}

// AdmitJobParams bundles the fields required to admit a new publish job
// inside a single transaction (nonce insert + job insert + audit append).
type AdmitJobParams struct {
	RecordID        string
	RecordBody      json.RawMessage
	RecordHash      string
	SignerPublicKey string
	Nonce           string
}

// NewUTXO is used to insert a pool input (bootstrap or replenisher split output)
type NewUTXO struct {
	TxID          string
	Vout          int
	Satoshis      int64
	LockingScript []byte
	Address       string
	Purpose       UTXOPurpose
}

// ClaimedJob is the narrow view returned by ClaimQueued/ClaimNextInBatch
type ClaimedJob struct {
	JobID      string
	RecordID   string
	RecordBody json.RawMessage
	RecordHash string
	BatchID    string
	BatchSeq   int64
}
