// Copyright 2025 Certen Protocol
//
// Router assembles the service's HTTP surface over stdlib net/http.ServeMux:
// admission, job/record queries, liveness, and Prometheus metrics.

package server

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/anchorsvc/pkg/database"
	"github.com/certen/anchorsvc/pkg/intent"
)

// NewRouter wires every handler onto a fresh *http.ServeMux.
func NewRouter(validator *intent.Validator, repos *database.Repositories, dbClient *database.Client, logger *log.Logger) *http.ServeMux {
	admission := NewAdmissionHandler(validator, repos.Jobs, logger)
	query := NewQueryHandlers(repos.Jobs, logger)
	health := NewHealthHandler(dbClient)

	mux := http.NewServeMux()
	mux.Handle("/intents", admission)
	mux.HandleFunc("/jobs/", query.HandleJobByID)
	mux.HandleFunc("/records/", query.HandleRecordByID)
	mux.Handle("/healthz", health)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
