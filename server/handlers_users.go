package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/streamforge/backend/db"
)

// HandleMe returns the authenticated caller's account.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
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
	u, err := db.GetUserByID(r.Context(), h.db, uid)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account no longer exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleUsersList returns a paginated account list. Admin only.
func (h *Handlers) HandleUsersList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, offset := pageParams(r, 50, 200)
	users, err := db.ListUsers(r.Context(), h.db, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleUsersDispatcher routes requests under /users/{id}/* to sub-handlers.
func (h *Handlers) HandleUsersDispatcher(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	parts := strings.Split(path, "/")
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	uid, err := uuid.Parse(parts[0])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		h.handleUserDetail(w, r, uid)
	case "role":
		h.handleUserRole(w, r, uid)
	case "active":
		h.handleUserActive(w, r, uid)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleUserDetail(w http.ResponseWriter, r *http.Request, uid uuid.UUID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	u, err := db.GetUserByID(r.Context(), h.db, uid)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handlers) handleUserRole(w http.ResponseWriter, r *http.Request, uid uuid.UUID) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !db.ValidRole(body.Role) {
		writeError(w, http.StatusUnprocessableEntity, "unknown role")
		return
	}
	if err := db.SetUserRole(r.Context(), h.db, uid, body.Role); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleUserActive(w http.ResponseWriter, r *http.Request, uid uuid.UUID) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeError(w, http.StatusBadRequest, "missing active flag")
		return
	}
	// Admins cannot lock themselves out.
	if claims := identityFrom(r.Context()); claims != nil && claims.UserID == uid.String() && !*body.Active {
		writeError(w, http.StatusUnprocessableEntity, "cannot deactivate own account")
		return
	}
	if err := db.SetUserActive(r.Context(), h.db, uid, *body.Active); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
