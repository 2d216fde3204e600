// Copyright 2025 Certen Protocol
//
// Admission API handler (POST intent): runs the ordered validation pipeline
// and, on success, admits the job idempotently.

package server

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/intent"
)

// AdmissionHandler serves POST /intents.
type AdmissionHandler struct {
	validator *intent.Validator
	jobs      *database.JobRepository
	logger    *log.Logger
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(validator *intent.Validator, jobs *database.JobRepository, logger *log.Logger) *AdmissionHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[admission] ", log.LstdFlags)
	}
	return &AdmissionHandler{validator: validator, jobs: jobs, logger: logger}
}

type admissionResponse struct {
	OK       bool   `json:"ok"`
	RecordID string `json:"recordId,omitempty"`
	Hash     string `json:"hash,omitempty"`
	JobID    string `json:"jobId,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ServeHTTP handles POST /intents.
func (h *AdmissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.validator.Validate(r.Context(), raw)
	if err != nil {
		var verr *intent.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, verr.Detail, statusForErrorKind(verr.Kind))
			return
		}
		h.logger.Printf("validate: %v", err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	admitted, err := h.jobs.Admit(r.Context(), database.AdmitJobParams{
		RecordID:        result.RecordID,
		RecordBody:      result.CanonicalBody,
		RecordHash:      result.RecordHash,
		SignerPublicKey: result.SignerPublicKey,
		Nonce:           result.Nonce,
	})
	if err != nil {
		if errors.Is(err, database.ErrReplayDetected) {
			writeJSONError(w, "nonce already used", http.StatusConflict)
			return
		}
		h.logger.Printf("admit: %v", err)
		writeJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, admissionResponse{
		OK:       true,
		RecordID: result.RecordID,
		Hash:     result.RecordHash,
		JobID:    admitted.JobID,
		Status:   string(database.JobStatusQueued),
	})
}

func statusForErrorKind(kind intent.ErrorKind) int {
	switch kind {
	case intent.ErrorReplayDetected:
		return http.StatusConflict
	case intent.ErrorUnknownSigner:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
