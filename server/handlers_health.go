package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/streamforge/backend/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"migrations", func() error {
			version, dirty, err := db.GetMigrationVersion(h.db)
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("schema dirty at version %d", version)
			}
			if version == 0 {
				return fmt.Errorf("schema not migrated")
			}
			return nil
		}},
		{"blocklist", func() error {
			pinger, ok := h.blocklist.(interface{ Ping(context.Context) error })
			if !ok {
				return nil
			}
			return pinger.Ping(r.Context())
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns a lightweight operational summary: schema version,
// account and stream counts, and process uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	resp := map[string]any{
		"app":            h.cfg.AppName,
		"env":            h.cfg.Env,
		"uptime_seconds": int(h.uptime().Seconds()),
	}

	if version, dirty, err := db.GetMigrationVersion(h.db); err == nil {
		resp["schema_version"] = version
		resp["schema_dirty"] = dirty
	}

	var users, streams, live int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&users)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM streams`).Scan(&streams)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM streams WHERE is_live`).Scan(&live)
	resp["users"] = users
	resp["streams"] = streams
	resp["live_streams"] = live

	writeJSON(w, http.StatusOK, resp)
}
