// Copyright 2025 Certen Protocol
//
// Package pipeline implements the reserve -> build -> rate-limit -> broadcast
// -> commit sequence shared by the single-job worker (C8) and the batch
// broadcaster (C9). The only difference between the two callers is which
// job.status value the attempt transitions out of ("processing" for the
// single-job worker, "sending" for the batch broadcaster) and whether a
// rate limiter is passed in at all (the single-job worker passes nil).

package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"

	"github.com/certen/anchorsvc/pkg/broadcast"
	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/pool"
	"github.com/certen/anchorsvc/pkg/txbuilder"
)

// Dependencies bundles everything an Attempt needs. All fields are
// process-wide, immutable resources shared across every job.
type Dependencies struct {
	Pool          *pool.Manager
	Jobs          *database.JobRepository
	Audit         *database.AuditRepository
	Broadcaster   *broadcast.Client
	SigningKey    *btcec.PrivateKey
	ChangeAddress btcutil.Address
	FeeRateSatsPerKB int64
	Logger        *log.Logger
}

// RateLimiter is satisfied by *batch.TokenBucket. Declared here rather than
// imported to avoid a pipeline -> batch import cycle (batch already imports
// pipeline).
type RateLimiter interface {
	Take(ctx context.Context, n int) error
}

// Attempt drives one job through reserve -> build -> rate-limit -> broadcast
// -> commit, transitioning it out of `from`. limiter may be nil (the
// single-job worker does not rate limit); when non-nil, a token is acquired
// only after a successful Build, immediately before Broadcast, so that jobs
// failing at Reserve or Build never consume a token meant for jobs that
// actually reach the wire.
func Attempt(ctx context.Context, dep *Dependencies, job database.ClaimedJob, from database.JobStatus, limiter RateLimiter) error {
	logger := dep.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[pipeline] ", log.LstdFlags)
	}

	utxo, err := dep.Pool.Reserve(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: reserve for job %s: %w", job.JobID, err)
	}
	if utxo == nil {
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeNoCapacity, "no available pool input")
	}

	hashBytes, err := decodeRecordHash(job.RecordHash)
	if err != nil {
		if releaseErr := dep.Pool.Release(ctx, utxo.ID); releaseErr != nil {
			logger.Printf("job %s: release after bad record hash failed: %v", job.JobID, releaseErr)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeBuildError, err.Error())
	}

	built, err := txbuilder.Build(&pool.UTXO{
		ID:            utxo.ID,
		TxID:          utxo.TxID,
		Vout:          utxo.Vout,
		Satoshis:      utxo.Satoshis,
		LockingScript: utxo.LockingScript,
		Address:       utxo.Address,
	}, hashBytes, dep.ChangeAddress, dep.SigningKey, dep.FeeRateSatsPerKB)
	if err != nil {
		if releaseErr := dep.Pool.Release(ctx, utxo.ID); releaseErr != nil {
			logger.Printf("job %s: release after build failure failed: %v", job.JobID, releaseErr)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeBuildError, err.Error())
	}

	if limiter != nil {
		if err := limiter.Take(ctx, 1); err != nil {
			if releaseErr := dep.Pool.Release(ctx, utxo.ID); releaseErr != nil {
				logger.Printf("job %s: release after rate limiter wait failed: %v", job.JobID, releaseErr)
			}
			return fmt.Errorf("pipeline: rate limiter for job %s: %w", job.JobID, err)
		}
	}

	outcome, err := dep.Broadcaster.Send(ctx, built.RawTx)
	if err != nil {
		if releaseErr := dep.Pool.Release(ctx, utxo.ID); releaseErr != nil {
			logger.Printf("job %s: release after broadcast call failure failed: %v", job.JobID, releaseErr)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeTransientNetwork, err.Error())
	}

	switch outcome.Kind {
	case broadcast.Success:
		if err := dep.Pool.MarkSpent(ctx, utxo.ID, outcome.TxID); err != nil {
			return fmt.Errorf("pipeline: mark spent for job %s: %w", job.JobID, err)
		}
		ok, err := dep.Jobs.Transition(ctx, job.JobID, from, database.JobStatusSent, database.TransitionFields{LedgerTxID: outcome.TxID})
		if err != nil {
			return fmt.Errorf("pipeline: transition sent for job %s: %w", job.JobID, err)
		}
		if !ok {
			logger.Printf("job %s: transition to sent did not apply (unexpected concurrent state change)", job.JobID)
		}
		dep.audit(ctx, job.JobID, "broadcast_success", map[string]string{"ledgerTxId": outcome.TxID})
		return nil

	case broadcast.MempoolConflict:
		if err := dep.Pool.MarkDirty(ctx, utxo.ID); err != nil {
			return fmt.Errorf("pipeline: mark dirty for job %s: %w", job.JobID, err)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeMempoolConflict, outcome.Detail)

	case broadcast.TransientNetwork:
		if err := dep.Pool.Release(ctx, utxo.ID); err != nil {
			return fmt.Errorf("pipeline: release for job %s: %w", job.JobID, err)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodeTransientNetwork, outcome.Detail)

	default: // broadcast.PermanentReject
		if err := dep.Pool.Release(ctx, utxo.ID); err != nil {
			return fmt.Errorf("pipeline: release for job %s: %w", job.JobID, err)
		}
		return dep.fail(ctx, job.JobID, from, database.ErrorCodePermanentReject, outcome.Detail)
	}
}

func (dep *Dependencies) fail(ctx context.Context, jobID string, from database.JobStatus, code database.ErrorCode, detail string) error {
	ok, err := dep.Jobs.Transition(ctx, jobID, from, database.JobStatusFailed, database.TransitionFields{
		ErrorCode:   string(code),
		ErrorDetail: detail,
	})
	if err != nil {
		return fmt.Errorf("pipeline: transition failed for job %s: %w", jobID, err)
	}
	if !ok && dep.Logger != nil {
		dep.Logger.Printf("job %s: transition to failed did not apply (unexpected concurrent state change)", jobID)
	}
	dep.audit(ctx, jobID, "broadcast_failed", map[string]string{"errorCode": string(code), "errorDetail": detail})
	return nil
}

func (dep *Dependencies) audit(ctx context.Context, jobID, action string, details interface{}) {
	if dep.Audit == nil {
		return
	}
	if err := dep.Audit.Append(ctx, "PUBLISH_JOB", "", "job", jobID, action, details); err != nil && dep.Logger != nil {
		dep.Logger.Printf("job %s: append audit event failed: %v", jobID, err)
	}
}

func decodeRecordHash(hexHash string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(hexHash)
	if err != nil {
		return out, fmt.Errorf("record hash is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("record hash must decode to 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
