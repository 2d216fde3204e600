// Copyright 2025 Certen Protocol
//
// Shared test harness for repository tests. Tests run only against a real
// Postgres instance named by ANCHORSVC_TEST_DB; otherwise they are skipped.

package database

import (
	"os"
	"testing"

	"github.com/certen/anchorsvc/pkg/config"
)

var testClient *Client

func TestMain(m *testing.M) {
	dsn := os.Getenv("ANCHORSVC_TEST_DB")
	if dsn == "" {
		os.Exit(0)
	}

	cfg := &config.Config{
		DatabaseURL:      dsn,
		DatabaseMaxConns: 5,
		DatabaseMinConns: 1,
	}

	var err error
	testClient, err = NewClient(cfg)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()

	testClient.Close()
	os.Exit(code)
}
