package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/stream"
)

// streamWithKey is the owner-facing view of a stream. The publish key is
// excluded from db.Stream's JSON on purpose and added back here only for
// responses the owner alone can fetch.
type streamWithKey struct {
	*db.Stream
	StreamKey string `json:"stream_key"`
}

// HandleStreams serves /streams: POST provisions a stream for the caller,
// GET lists public live streams.
func (h *Handlers) HandleStreams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.requireRole(db.RoleStreamer, h.handleStreamCreate)(w, r)
	case http.MethodGet:
		h.handleStreamsLive(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handlers) handleStreamCreate(w http.ResponseWriter, r *http.Request) {
	claims := identityFrom(r.Context())
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var in stream.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := h.streams.Create(r.Context(), uid, in)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, streamWithKey{Stream: st, StreamKey: st.StreamKey})
}

func (h *Handlers) handleStreamsLive(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50, 200)
	list, err := db.ListLiveStreams(r.Context(), h.db, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleMyStreams lists the caller's streams, live or not.
func (h *Handlers) HandleMyStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims := identityFrom(r.Context())
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	limit, offset := pageParams(r, 50, 200)
	list, err := db.ListStreamsByUser(r.Context(), h.db, uid, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleStreamsDispatcher routes requests under /streams/{sid}/* to sub-handlers.
func (h *Handlers) HandleStreamsDispatcher(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/streams/")
	parts := strings.Split(path, "/")
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	sid, err := uuid.Parse(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		h.handleStreamDetail(w, r, sid)
	case "details":
		h.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			h.handleStreamKey(w, r, sid)
		})(w, r)
	default:
		http.NotFound(w, r)
	}
}

// isOwner reports whether the request's caller owns the stream. Admins count
// as owners for moderation purposes.
func (h *Handlers) isOwner(r *http.Request, st *db.Stream) bool {
	claims, err := h.authenticate(r)
	if err != nil {
		return false
	}
	return claims.UserID == st.UserID.String() || claims.Role == db.RoleAdmin
}

func (h *Handlers) handleStreamDetail(w http.ResponseWriter, r *http.Request, sid uuid.UUID) {
	st, err := db.GetStreamByID(r.Context(), h.db, sid)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if st.IsPrivate && !h.isOwner(r, st) {
			// Indistinguishable from a missing stream.
			writeError(w, http.StatusNotFound, "stream not found")
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPut, http.MethodPatch:
		if !h.isOwner(r, st) {
			writeError(w, http.StatusForbidden, "not your stream")
			return
		}
		var up db.StreamUpdate
		if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		updated, err := db.UpdateStream(r.Context(), h.db, sid, st.UserID, up)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !h.isOwner(r, st) {
			writeError(w, http.StatusForbidden, "not your stream")
			return
		}
		if err := db.DeleteStream(r.Context(), h.db, sid, st.UserID); err != nil {
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleStreamKey returns the owner's full view of a stream, publish key and
// ingest URL included.
func (h *Handlers) handleStreamKey(w http.ResponseWriter, r *http.Request, sid uuid.UUID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, err := db.GetStreamByID(r.Context(), h.db, sid)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	claims := identityFrom(r.Context())
	if claims.UserID != st.UserID.String() {
		writeError(w, http.StatusForbidden, "not your stream")
		return
	}
	writeJSON(w, http.StatusOK, streamWithKey{Stream: st, StreamKey: st.StreamKey})
}
