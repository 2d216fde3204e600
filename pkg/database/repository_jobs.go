// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JobRepository is the durable, transactional store for publish jobs,
// nonces, and batches (C4 in the component design).
type JobRepository struct {
	client *Client
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// AdmitResult reports the outcome of Admit: either a freshly created job or
// the pre-existing job for a record hash that has already been admitted.
type AdmitResult struct {
	JobID     string
	Duplicate bool // true when an existing job was returned (idempotent admission)
}

// Admit inserts the nonce row, the publish job, and the audit event in a
// single transaction. A nonce unique-violation surfaces as ErrReplayDetected.
// A record-hash collision is not an error: the existing job id is returned
// with Duplicate = true.
func (r *JobRepository) Admit(ctx context.Context, params AdmitJobParams) (*AdmitResult, error) {
	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("admit: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Tx().ExecContext(ctx,
		`INSERT INTO nonce_records (public_key, nonce, created_at) VALUES ($1, $2, now())`,
		params.SignerPublicKey, params.Nonce)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrReplayDetected
		}
		return nil, fmt.Errorf("admit: insert nonce: %w", err)
	}

	jobID := uuid.New().String()
	var insertedJobID string
	err = tx.Tx().QueryRowContext(ctx, `
		INSERT INTO publish_jobs
			(job_id, record_id, record_body, record_hash, signer_public_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (record_hash) DO NOTHING
		RETURNING job_id
	`, jobID, params.RecordID, params.RecordBody, params.RecordHash, params.SignerPublicKey, JobStatusQueued).
		Scan(&insertedJobID)

	result := &AdmitResult{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// record hash already admitted: fetch the existing job id.
		var existing string
		if err := tx.Tx().QueryRowContext(ctx,
			`SELECT job_id FROM publish_jobs WHERE record_hash = $1`, params.RecordHash).
			Scan(&existing); err != nil {
			return nil, fmt.Errorf("admit: lookup existing job: %w", err)
		}
		result.JobID = existing
		result.Duplicate = true
	case err != nil:
		return nil, fmt.Errorf("admit: insert job: %w", err)
	default:
		result.JobID = insertedJobID
	}

	action := "submit"
	if result.Duplicate {
		action = "duplicate_submit"
	}
	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO audit_events (event_type, actor_public_key, resource_type, resource_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, "PUBLISH_INTENT", params.SignerPublicKey, "job", result.JobID, action); err != nil {
		return nil, fmt.Errorf("admit: append audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("admit: commit: %w", err)
	}
	return result, nil
}

// TransitionFields carries the optional fields written alongside a status
// transition (ledger txid on success, error code/detail on failure, etc).
type TransitionFields struct {
	LedgerTxID  string
	ErrorCode   string
	ErrorDetail string
}

// Transition conditionally moves a job from `from` to `to`, returning
// whether the transition applied. All status writes go through here so the
// `WHERE status = from` clause serializes concurrent transition attempts.
func (r *JobRepository) Transition(ctx context.Context, jobID string, from, to JobStatus, fields TransitionFields) (bool, error) {
	query := `
		UPDATE publish_jobs
		SET status = $1,
			ledger_txid = COALESCE(NULLIF($2, ''), ledger_txid),
			error_code = COALESCE(NULLIF($3, ''), error_code),
			error_detail = COALESCE(NULLIF($4, ''), error_detail),
			sent_at = CASE WHEN $1 = 'sent' THEN now() ELSE sent_at END,
			updated_at = now()
		WHERE job_id = $5 AND status = $6
	`
	res, err := r.client.ExecContext(ctx, query, to, fields.LedgerTxID, fields.ErrorCode, fields.ErrorDetail, jobID, from)
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", jobID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", jobID, from, to, err)
	}
	return n > 0, nil
}

// ClaimQueued atomically moves up to limit oldest queued jobs into
// processing_batch, assigning them a fresh batch id and dense 1..k sequence
// numbers in creation-time order. Uses a skip-locked read so multiple
// collectors never double-claim.
func (r *JobRepository) ClaimQueued(ctx context.Context, limit int) ([]ClaimedJob, error) {
	batchID := uuid.New().String()

	tx, err := r.client.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim queued: begin tx: %w", err)
	}
	defer tx.Rollback()

	// The batch row must exist before publish_jobs.batch_id can reference it;
	// it is discarded with the rollback when nothing is claimed.
	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO job_batches (batch_id, created_at) VALUES ($1, now())
	`, batchID); err != nil {
		return nil, fmt.Errorf("claim queued: insert job_batches: %w", err)
	}

	rows, err := tx.Tx().QueryContext(ctx, `
		WITH locked AS (
			SELECT id, created_at
			FROM publish_jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		),
		seqd AS (
			SELECT id, row_number() OVER (ORDER BY created_at) AS seq
			FROM locked
		)
		UPDATE publish_jobs p
		SET status = $3, batch_id = $4, batch_seq = seqd.seq, updated_at = now()
		FROM seqd
		WHERE p.id = seqd.id
		RETURNING p.job_id, p.record_id, p.record_body, p.record_hash, p.batch_id, p.batch_seq
	`, JobStatusQueued, limit, JobStatusProcessingBatch, batchID)
	if err != nil {
		return nil, fmt.Errorf("claim queued: %w", err)
	}
	defer rows.Close()

	var claimed []ClaimedJob
	for rows.Next() {
		var cj ClaimedJob
		if err := rows.Scan(&cj.JobID, &cj.RecordID, &cj.RecordBody, &cj.RecordHash, &cj.BatchID, &cj.BatchSeq); err != nil {
			return nil, fmt.Errorf("claim queued: scan: %w", err)
		}
		claimed = append(claimed, cj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim queued: %w", err)
	}
	rows.Close()

	if len(claimed) == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim queued: commit: %w", err)
	}
	return claimed, nil
}

// ClaimOneQueued atomically moves a single oldest queued job to processing,
// for the low-volume single-job worker path (C8). It never assigns a batch.
// Returns nil, nil when no queued job is available.
func (r *JobRepository) ClaimOneQueued(ctx context.Context) (*ClaimedJob, error) {
	row := r.client.QueryRowContext(ctx, `
		WITH next AS (
			SELECT id
			FROM publish_jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE publish_jobs p
		SET status = $2, updated_at = now()
		FROM next
		WHERE p.id = next.id
		RETURNING p.job_id, p.record_id, p.record_body, p.record_hash, p.batch_id, p.batch_seq
	`, JobStatusQueued, JobStatusProcessing)

	var cj ClaimedJob
	var batchID sql.NullString
	var batchSeq sql.NullInt64
	err := row.Scan(&cj.JobID, &cj.RecordID, &cj.RecordBody, &cj.RecordHash, &batchID, &batchSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim one queued: %w", err)
	}
	cj.BatchID = batchID.String
	cj.BatchSeq = batchSeq.Int64
	return &cj, nil
}

// CloseBatch records the completion time once a batch has fully drained
// (every job reached sent or failed).
func (r *JobRepository) CloseBatch(ctx context.Context, batchID string) error {
	_, err := r.client.ExecContext(ctx, `
		UPDATE job_batches SET completed_at = now() WHERE batch_id = $1 AND completed_at IS NULL
	`, batchID)
	if err != nil {
		return fmt.Errorf("close batch %s: %w", batchID, err)
	}
	return nil
}

// ClaimNextInBatch atomically moves the lowest-seq processing_batch job in
// batchID to sending. Returns nil, nil when the batch is drained.
func (r *JobRepository) ClaimNextInBatch(ctx context.Context, batchID string) (*ClaimedJob, error) {
	row := r.client.QueryRowContext(ctx, `
		WITH next AS (
			SELECT id
			FROM publish_jobs
			WHERE batch_id = $1 AND status = $2
			ORDER BY batch_seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE publish_jobs p
		SET status = $3, sending_started_at = now(), updated_at = now()
		FROM next
		WHERE p.id = next.id
		RETURNING p.job_id, p.record_id, p.record_body, p.record_hash, p.batch_id, p.batch_seq
	`, batchID, JobStatusProcessingBatch, JobStatusSending)

	var cj ClaimedJob
	err := row.Scan(&cj.JobID, &cj.RecordID, &cj.RecordBody, &cj.RecordHash, &cj.BatchID, &cj.BatchSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next in batch %s: %w", batchID, err)
	}
	return &cj, nil
}

// OldestActiveBatch returns the batch id with the smallest MIN(created_at)
// among jobs still in processing_batch or sending, or "" if none are active.
func (r *JobRepository) OldestActiveBatch(ctx context.Context) (string, error) {
	var batchID sql.NullString
	err := r.client.QueryRowContext(ctx, `
		SELECT batch_id
		FROM publish_jobs
		WHERE status IN ($1, $2) AND batch_id IS NOT NULL
		GROUP BY batch_id
		ORDER BY MIN(created_at)
		LIMIT 1
	`, JobStatusProcessingBatch, JobStatusSending).Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("oldest active batch: %w", err)
	}
	return batchID.String, nil
}

// Unstick reverts any job in `sending` whose sending_started_at is older
// than cutoff back to processing_batch, clearing sending_started_at. Run on
// startup and periodically; returns the number of jobs reverted.
func (r *JobRepository) Unstick(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.client.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = $1, sending_started_at = NULL, updated_at = now()
		WHERE status = $2 AND sending_started_at < $3
	`, JobStatusProcessingBatch, JobStatusSending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("unstick: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unstick: %w", err)
	}
	return int(n), nil
}

// GetByJobID returns a job by its opaque job id.
func (r *JobRepository) GetByJobID(ctx context.Context, jobID string) (*PublishJob, error) {
	return r.scanOne(ctx, `
		SELECT id, job_id, record_id, record_body, record_hash, signer_public_key, status,
			ledger_txid, error_code, error_detail, batch_id, batch_seq, sending_started_at,
			created_at, sent_at, updated_at
		FROM publish_jobs WHERE job_id = $1
	`, jobID)
}

// GetLatestByRecordID returns the most recently created job for a record id.
func (r *JobRepository) GetLatestByRecordID(ctx context.Context, recordID string) (*PublishJob, error) {
	return r.scanOne(ctx, `
		SELECT id, job_id, record_id, record_body, record_hash, signer_public_key, status,
			ledger_txid, error_code, error_detail, batch_id, batch_seq, sending_started_at,
			created_at, sent_at, updated_at
		FROM publish_jobs WHERE record_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, recordID)
}

func (r *JobRepository) scanOne(ctx context.Context, query string, arg interface{}) (*PublishJob, error) {
	var j PublishJob
	err := r.client.QueryRowContext(ctx, query, arg).Scan(
		&j.ID, &j.JobID, &j.RecordID, &j.RecordBody, &j.RecordHash, &j.SignerPublicKey, &j.Status,
		&j.LedgerTxID, &j.ErrorCode, &j.ErrorDetail, &j.BatchID, &j.BatchSeq, &j.SendingStartedAt,
		&j.CreatedAt, &j.SentAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
