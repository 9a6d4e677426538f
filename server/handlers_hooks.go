package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/telemetry"
)

// RTMP edge webhooks. The edge (nginx-rtmp style) posts form-encoded events
// with the published stream name in the "name" field, which for this platform
// is the publish key. A 2xx response allows the action; anything else denies it.

// hookStream resolves the webhook's stream from the form fields. Publishers
// and RTMP players both address streams by publish key.
func (h *Handlers) hookStream(w http.ResponseWriter, r *http.Request) (*db.Stream, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return nil, false
	}
	key := r.PostFormValue("name")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing stream name")
		return nil, false
	}
	st, err := h.streams.AuthenticatePublish(r.Context(), key)
	if errors.Is(err, db.ErrNotFound) {
		slog.Warn("webhook for unknown stream key", slog.String("addr", r.PostFormValue("addr")), slog.String("component", "hooks"))
		writeError(w, http.StatusForbidden, "unknown stream key")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return nil, false
	}
	return st, true
}

// HandleHookPublish authorizes an encoder connecting to the ingest edge and
// marks the stream live.
func (h *Handlers) HandleHookPublish(w http.ResponseWriter, r *http.Request) {
	telemetry.CountWebhookEvent("publish")
	st, ok := h.hookStream(w, r)
	if !ok {
		return
	}
	if err := h.streams.Start(r.Context(), st.SID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHookPublishDone marks the stream offline when the encoder disconnects.
func (h *Handlers) HandleHookPublishDone(w http.ResponseWriter, r *http.Request) {
	telemetry.CountWebhookEvent("publish_done")
	st, ok := h.hookStream(w, r)
	if !ok {
		return
	}
	if err := h.streams.Stop(r.Context(), st.SID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop stream")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHookPlay counts a viewer joining via the RTMP edge.
func (h *Handlers) HandleHookPlay(w http.ResponseWriter, r *http.Request) {
	telemetry.CountWebhookEvent("play")
	st, ok := h.hookStream(w, r)
	if !ok {
		return
	}
	if st.IsPrivate {
		writeError(w, http.StatusForbidden, "private stream")
		return
	}
	if err := h.streams.ViewerJoined(r.Context(), st.SID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record viewer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHookPlayDone counts a viewer leaving.
func (h *Handlers) HandleHookPlayDone(w http.ResponseWriter, r *http.Request) {
	telemetry.CountWebhookEvent("play_done")
	st, ok := h.hookStream(w, r)
	if !ok {
		return
	}
	if err := h.streams.ViewerLeft(r.Context(), st.SID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record viewer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
