// Copyright 2025 Certen Protocol

package database

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestAdmit_DuplicateRecordHashReturnsSameJobID(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	repo := NewJobRepository(testClient)
	signerRepo := NewSignerRepository(testClient)
	ctx := context.Background()

	pubKey := "02" + strings.Repeat(strings.ReplaceAll(uuid.New().String(), "-", ""), 2)
	if _, err := signerRepo.Register(ctx, NewSigner{PublicKey: pubKey}); err != nil {
		t.Fatalf("register signer: %v", err)
	}

	hash := uuid.New().String()
	body := json.RawMessage(`{"recordId":"REC-DUP"}`)

	first, err := repo.Admit(ctx, AdmitJobParams{
		RecordID:        "REC-DUP",
		RecordBody:      body,
		RecordHash:      hash,
		SignerPublicKey: pubKey,
		Nonce:           "n1",
	})
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if first.Duplicate {
		t.Fatal("expected first admission to be fresh, not duplicate")
	}

	second, err := repo.Admit(ctx, AdmitJobParams{
		RecordID:        "REC-DUP",
		RecordBody:      body,
		RecordHash:      hash,
		SignerPublicKey: pubKey,
		Nonce:           "n2",
	})
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("expected second admission to be flagged duplicate")
	}
	if second.JobID != first.JobID {
		t.Fatalf("expected same job id, got %s vs %s", first.JobID, second.JobID)
	}
}

func TestAdmit_ReplayedNonceReturnsError(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	repo := NewJobRepository(testClient)
	signerRepo := NewSignerRepository(testClient)
	ctx := context.Background()

	pubKey := "02" + strings.Repeat(strings.ReplaceAll(uuid.New().String(), "-", ""), 2)
	if _, err := signerRepo.Register(ctx, NewSigner{PublicKey: pubKey}); err != nil {
		t.Fatalf("register signer: %v", err)
	}

	nonce := "replay-nonce"
	_, err := repo.Admit(ctx, AdmitJobParams{
		RecordID:        "REC-A",
		RecordBody:      json.RawMessage(`{}`),
		RecordHash:      uuid.New().String(),
		SignerPublicKey: pubKey,
		Nonce:           nonce,
	})
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}

	_, err = repo.Admit(ctx, AdmitJobParams{
		RecordID:        "REC-B",
		RecordBody:      json.RawMessage(`{}`),
		RecordHash:      uuid.New().String(),
		SignerPublicKey: pubKey,
		Nonce:           nonce,
	})
	if err != ErrReplayDetected {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}
}

func TestTransition_OnlyAppliesFromExpectedState(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	repo := NewJobRepository(testClient)
	signerRepo := NewSignerRepository(testClient)
	ctx := context.Background()

	pubKey := "02" + strings.Repeat(strings.ReplaceAll(uuid.New().String(), "-", ""), 2)
	if _, err := signerRepo.Register(ctx, NewSigner{PublicKey: pubKey}); err != nil {
		t.Fatalf("register signer: %v", err)
	}

	admitted, err := repo.Admit(ctx, AdmitJobParams{
		RecordID:        "REC-C",
		RecordBody:      json.RawMessage(`{}`),
		RecordHash:      uuid.New().String(),
		SignerPublicKey: pubKey,
		Nonce:           "n-c",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	ok, err := repo.Transition(ctx, admitted.JobID, JobStatusQueued, JobStatusProcessing, TransitionFields{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatal("expected transition from queued to processing to apply")
	}

	ok, err = repo.Transition(ctx, admitted.JobID, JobStatusQueued, JobStatusProcessing, TransitionFields{})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ok {
		t.Fatal("expected repeated transition from queued to not apply once job is processing")
	}
}
