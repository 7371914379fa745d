package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/intake-dedup/internal/reference"
)

// Pinger reports whether the database answers; *sqlx.DB implements it
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports service readiness
type HealthHandler struct {
	Table *reference.Table
	DB    Pinger // nil when running without a database
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status             string `json:"status"`
	ReferenceIntervals int    `json:"reference_intervals"`
	Database           string `json:"database"`
}

// Health handles GET /api/health. A configured but unreachable database
// makes the service unavailable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:             "ok",
		ReferenceIntervals: len(h.Table.Intervals()),
		Database:           "disabled",
	}
	status := http.StatusOK

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			response.Status = "degraded"
			response.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			response.Database = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
