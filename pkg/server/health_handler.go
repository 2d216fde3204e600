// Copyright 2025 Certen Protocol
//
// Liveness probe: GET /healthz pings the database via Client.Health.

package server

import (
	"net/http"

	"github.com/certen/anchorsvc/pkg/database"
)

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	client *database.Client
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(client *database.Client) *HealthHandler {
	return &HealthHandler{client: client}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, err := h.client.Health(r.Context())
	if err != nil || !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
