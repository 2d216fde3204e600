// Copyright 2025 Certen Protocol
//
// Job and record query handlers: GET /jobs/{jobId} and GET /records/{recordId}.

package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/certen/anchorsvc/pkg/database"
)

// QueryHandlers serves the read-only job/record lookup endpoints.
type QueryHandlers struct {
	jobs   *database.JobRepository
	logger *log.Logger
}

// NewQueryHandlers constructs a QueryHandlers.
func NewQueryHandlers(jobs *database.JobRepository, logger *log.Logger) *QueryHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[query] ", log.LstdFlags)
	}
	return &QueryHandlers{jobs: jobs, logger: logger}
}

type timestamps struct {
	CreatedAt   string  `json:"createdAt"`
	SentAt      *string `json:"sentAt,omitempty"`
	ConfirmedAt *string `json:"confirmedAt,omitempty"`
}

type jobSummary struct {
	OK          bool        `json:"ok"`
	JobID       string      `json:"jobId"`
	RecordID    string      `json:"recordId"`
	Status      string      `json:"status"`
	TxID        string      `json:"txid,omitempty"`
	ErrorCode   string      `json:"errorCode,omitempty"`
	ErrorDetail string      `json:"errorDetail,omitempty"`
	Timestamps  timestamps  `json:"timestamps"`
}

func summarize(j *database.PublishJob) jobSummary {
	s := jobSummary{
		OK:       true,
		JobID:    j.JobID,
		RecordID: j.RecordID,
		Status:   string(j.Status),
		Timestamps: timestamps{
			CreatedAt: j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
	}
	if j.LedgerTxID.Valid {
		s.TxID = j.LedgerTxID.String
	}
	if j.ErrorCode.Valid {
		s.ErrorCode = j.ErrorCode.String
	}
	if j.ErrorDetail.Valid {
		s.ErrorDetail = j.ErrorDetail.String
	}
	if j.SentAt.Valid {
		sentAt := j.SentAt.Time.Format("2006-01-02T15:04:05Z07:00")
		s.Timestamps.SentAt = &sentAt
		s.Timestamps.ConfirmedAt = &sentAt
	}
	return s
}

// HandleJobByID serves GET /jobs/{jobId}.
func (h *QueryHandlers) HandleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID == "" {
		writeJSONError(w, "missing job id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetByJobID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("get job %s: %v", jobID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summarize(job))
}

type recordResponse struct {
	jobSummary
	RecordBody json.RawMessage `json:"recordBody"`
}

// HandleRecordByID serves GET /records/{recordId}: the latest job summary
// for that record plus the stored canonical body.
func (h *QueryHandlers) HandleRecordByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	recordID := strings.TrimPrefix(r.URL.Path, "/records/")
	if recordID == "" {
		writeJSONError(w, "missing record id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetLatestByRecordID(r.Context(), recordID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			writeJSONError(w, "record not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("get record %s: %v", recordID, err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{
		jobSummary: summarize(job),
		RecordBody: job.RecordBody,
	})
}
