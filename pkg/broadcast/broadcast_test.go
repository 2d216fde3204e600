package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSend_SuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"txid":"abc123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	outcome, err := c.Send(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != Success || outcome.TxID != "abc123" {
		t.Fatalf("expected success with txid, got %+v", outcome)
	}
}

func TestSend_MempoolConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"txn-already-known"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	outcome, err := c.Send(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != MempoolConflict {
		t.Fatalf("expected MempoolConflict, got %+v", outcome)
	}
}

func TestSend_TransientNetworkOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`server error`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	outcome, err := c.Send(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != TransientNetwork {
		t.Fatalf("expected TransientNetwork, got %+v", outcome)
	}
}

func TestSend_PermanentRejectOnUnrecognizedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad signature"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	outcome, err := c.Send(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != PermanentReject {
		t.Fatalf("expected PermanentReject, got %+v", outcome)
	}
}

func TestSend_TimeoutYieldsTransientNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"txid":"late"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Millisecond)
	outcome, err := c.Send(context.Background(), []byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != TransientNetwork {
		t.Fatalf("expected TransientNetwork on timeout, got %+v", outcome)
	}
}
