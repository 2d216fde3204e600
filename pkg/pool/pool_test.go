// Copyright 2025 Certen Protocol

package pool

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/certen/anchorsvc/pkg/config"
	"github.com/certen/anchorsvc/pkg/database"
)

var errDuplicateReservation = errors.New("duplicate utxo id observed across concurrent reservations")

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

// TestReserve_ConcurrentCallersObtainDistinctUTXOs verifies P4: every
// concurrent Reserve() call observes a distinct UTXO id or nil, never the
// same id twice.
func TestReserve_ConcurrentCallersObtainDistinctUTXOs(t *testing.T) {
	if testClient == nil {
		t.Skip("Test database not configured")
	}

	repo := database.NewUTXORepository(testClient)
	mgr := NewManager(repo, 5*time.Minute)
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		txid := uuid.New().String()
		if _, err := mgr.Insert(ctx, database.NewUTXO{
			TxID:          txid,
			Vout:          0,
			Satoshis:      int64(100 + i),
			LockingScript: []byte{0x76, 0xa9},
			Address:       "1TestAddress",
			Purpose:       database.UTXOPurposePublish,
		}); err != nil {
			t.Fatalf("insert utxo %d: %v", i, err)
		}
	}

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := mgr.Reserve(ctx)
			if err != nil {
				errCh <- err
				return
			}
			if u == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[u.ID] {
				errCh <- errDuplicateReservation
			}
			seen[u.ID] = true
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("concurrent reserve error: %v", err)
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct reservations, got %d", n, len(seen))
	}
}
