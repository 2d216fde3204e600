// Copyright 2025 Certen Protocol

package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
	"github.com/google/uuid"

	"github.com/certen/anchorsvc/pkg/broadcast"
	"github.com/certen/anchorsvc/pkg/config"
	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/pool"
)

var testClient *database.Client

func TestMain(m *testing.M) {
	dsn := os.Getenv("ANCHORSVC_TEST_DB")
	if dsn == "" {
		os.Exit(0)
	}

	cfg := &config.Config{
		DatabaseURL:      dsn,
		DatabaseMaxConns: 10,
		DatabaseMinConns: 2,
	}

	var err error
	testClient, err = database.NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()

	testClient.Close()
	os.Exit(code)
}

// countingLimiter records how many times Take was called, so tests can
// assert the rate limiter is only ever reached once a job has a built
// transaction ready to broadcast.
type countingLimiter struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLimiter) Take(ctx context.Context, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls += n
	return nil
}

func (l *countingLimiter) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newTestDeps(t *testing.T, broadcastURL string) (*Dependencies, *database.JobRepository, *pool.Manager, *btcec.PrivateKey) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new private key: %v", err)
	}
	changeAddr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("new change address: %v", err)
	}

	jobs := database.NewJobRepository(testClient)
	utxos := database.NewUTXORepository(testClient)
	audit := database.NewAuditRepository(testClient)
	poolMgr := pool.NewManager(utxos, 5*time.Minute)

	deps := &Dependencies{
		Pool:             poolMgr,
		Jobs:             jobs,
		Audit:            audit,
		Broadcaster:      broadcast.NewClient(broadcastURL, 5*time.Second),
		SigningKey:       priv,
		ChangeAddress:    changeAddr,
		FeeRateSatsPerKB: 1000,
	}
	return deps, jobs, poolMgr, priv
}

func admitQueuedJob(t *testing.T, jobs *database.JobRepository, recordHash string) database.ClaimedJob {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"recordId": uuid.New().String()})
	result, err := jobs.Admit(context.Background(), database.AdmitJobParams{
		RecordID:        uuid.New().String(),
		RecordBody:      body,
		RecordHash:      recordHash,
		SignerPublicKey: strings.Repeat("ab", 33),
		Nonce:           uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	claimed, err := jobs.ClaimOneQueued(context.Background())
	if err != nil {
		t.Fatalf("claim one queued: %v", err)
	}
	if claimed == nil || claimed.JobID != result.JobID {
		t.Fatalf("expected to claim the job just admitted, got %+v", claimed)
	}
	return *claimed
}

// TestAttempt_NoCapacityNeverTakesAToken verifies that a job failing at
// Reserve because the pool is empty never reaches the rate limiter: Take is
// the last step before Broadcast, not the first step of Attempt.
func TestAttempt_NoCapacityNeverTakesAToken(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("broadcast endpoint must not be called when the pool has no capacity")
	}))
	defer srv.Close()

	deps, jobs, _, _ := newTestDeps(t, srv.URL)
	job := admitQueuedJob(t, jobs, strings.Repeat("aa", 32))

	limiter := &countingLimiter{}
	if err := Attempt(context.Background(), deps, job, database.JobStatusProcessing, limiter); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if limiter.Calls() != 0 {
		t.Fatalf("expected 0 rate limiter calls on NoCapacity, got %d", limiter.Calls())
	}

	got, err := jobs.GetByJobID(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("get by job id: %v", err)
	}
	if got.Status != database.JobStatusFailed || got.ErrorCode.String != string(database.ErrorCodeNoCapacity) {
		t.Fatalf("expected failed/NoCapacity, got status=%s errorCode=%s", got.Status, got.ErrorCode.String)
	}
}

// TestAttempt_BuildFailureNeverTakesAToken verifies that a job failing at
// Build (here, via an undecodable record hash) also never reaches the rate
// limiter, and its reserved UTXO is released back to available.
func TestAttempt_BuildFailureNeverTakesAToken(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("broadcast endpoint must not be called when Build fails")
	}))
	defer srv.Close()

	deps, jobs, poolMgr, _ := newTestDeps(t, srv.URL)

	utxoID, err := poolMgr.Insert(context.Background(), database.NewUTXO{
		TxID:          uuid.New().String(),
		Vout:          0,
		Satoshis:      1000,
		LockingScript: []byte{0x76, 0xa9},
		Address:       "1TestAddress",
		Purpose:       database.UTXOPurposePublish,
	})
	if err != nil {
		t.Fatalf("insert utxo: %v", err)
	}

	job := admitQueuedJob(t, jobs, "not-valid-hex")

	limiter := &countingLimiter{}
	if err := Attempt(context.Background(), deps, job, database.JobStatusProcessing, limiter); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if limiter.Calls() != 0 {
		t.Fatalf("expected 0 rate limiter calls on build failure, got %d", limiter.Calls())
	}

	got, err := jobs.GetByJobID(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("get by job id: %v", err)
	}
	if got.Status != database.JobStatusFailed || got.ErrorCode.String != string(database.ErrorCodeBuildError) {
		t.Fatalf("expected failed/BuildError, got status=%s errorCode=%s", got.Status, got.ErrorCode.String)
	}

	released, err := poolMgr.LargestFundingInput(context.Background(), utxoID)
	if err != nil {
		t.Fatalf("largest funding input: %v", err)
	}
	if released.Status != database.UTXOStatusAvailable {
		t.Fatalf("expected utxo released back to available, got %s", released.Status)
	}
}

// TestAttempt_SuccessTakesExactlyOneTokenAfterBuild verifies the only
// throttling point: one token consumed, after Build succeeds and
// immediately before Broadcast.
func TestAttempt_SuccessTakesExactlyOneTokenAfterBuild(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"txid":"` + strings.Repeat("cd", 32) + `"}`))
	}))
	defer srv.Close()

	deps, jobs, poolMgr, priv := newTestDeps(t, srv.URL)

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("pay to addr script: %v", err)
	}

	if _, err := poolMgr.Insert(context.Background(), database.NewUTXO{
		TxID:          strings.Repeat("ab", 32),
		Vout:          0,
		Satoshis:      900,
		LockingScript: script,
		Address:       addr.EncodeAddress(),
		Purpose:       database.UTXOPurposePublish,
	}); err != nil {
		t.Fatalf("insert utxo: %v", err)
	}

	job := admitQueuedJob(t, jobs, strings.Repeat("bb", 32))

	limiter := &countingLimiter{}
	if err := Attempt(context.Background(), deps, job, database.JobStatusProcessing, limiter); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if limiter.Calls() != 1 {
		t.Fatalf("expected exactly 1 rate limiter call on successful broadcast, got %d", limiter.Calls())
	}

	got, err := jobs.GetByJobID(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("get by job id: %v", err)
	}
	if got.Status != database.JobStatusSent {
		t.Fatalf("expected sent, got status=%s", got.Status)
	}
}
