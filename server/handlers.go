// Package server exposes the HTTP API: health and readiness probes, metrics,
// account and session endpoints, stream management, and the RTMP edge
// webhooks. It includes permissive CORS for development and injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/config"
	"github.com/streamforge/backend/stream"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db        *sql.DB
	cfg       *config.Config
	issuer    *auth.Issuer
	blocklist auth.Blocklist
	streams   *stream.Service
	started   time.Time
}

// NewHandlers creates a Handlers instance. blocklist may be nil, in which case
// logout still succeeds but revocation checks are skipped.
func NewHandlers(db *sql.DB, cfg *config.Config, issuer *auth.Issuer, blocklist auth.Blocklist, streams *stream.Service) *Handlers {
	return &Handlers{
		db:        db,
		cfg:       cfg,
		issuer:    issuer,
		blocklist: blocklist,
		streams:   streams,
		started:   time.Now(),
	}
}

func (h *Handlers) uptime() time.Duration {
	return time.Since(h.started)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err), slog.String("component", "http"))
	}
}

// writeError emits a JSON error body in the shape {"detail": "..."} that the
// frontend expects for every non-2xx response.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
