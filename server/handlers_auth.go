package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamforge/backend/auth"
	"github.com/streamforge/backend/crypto"
	"github.com/streamforge/backend/db"
	"github.com/streamforge/backend/telemetry"
)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// HandleRegister creates an account. The account starts unverified; the
// activation token is delivered out of band and redeemed via /auth/activate.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if len(req.Username) < 3 {
		writeError(w, http.StatusUnprocessableEntity, "username must be at least 3 characters")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}
	activation, err := crypto.NewSecret(24)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create activation token")
		return
	}

	u, err := db.CreateUser(r.Context(), h.db, db.NewUser{
		Username:        req.Username,
		Email:           req.Email,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		PasswordHash:    hash,
		Role:            db.RoleViewer,
		ActivationToken: activation,
		IsActive:        true,
	})
	if errors.Is(err, db.ErrConflict) {
		writeError(w, http.StatusConflict, "username or email already registered")
		return
	}
	if err != nil {
		slog.Error("failed to create user", slog.Any("err", err), slog.String("component", "auth"))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	if telemetry.UsersRegistered != nil {
		telemetry.UsersRegistered.Inc()
	}
	// Mail delivery is out of scope; the activation link lands in the logs so
	// operators can forward it in dev environments.
	slog.Info("user registered",
		slog.String("uid", u.UID.String()),
		slog.String("username", u.Username),
		slog.String("activation_token", activation),
		slog.String("component", "auth"))

	writeJSON(w, http.StatusCreated, u)
}

// HandleActivate redeems an activation token and marks the account verified.
func (h *Handlers) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	u, err := db.GetUserByActivationToken(r.Context(), h.db, token)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invalid or expired activation token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "activation failed")
		return
	}
	if err := db.SetUserVerified(r.Context(), h.db, u.UID); err != nil {
		writeError(w, http.StatusInternalServerError, "activation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func (h *Handlers) issueTokens(w http.ResponseWriter, u *db.User) {
	id := auth.Identity{UserID: u.UID.String(), Username: u.Username, Role: u.Role}
	access, err := h.issuer.IssueAccess(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	refresh, err := h.issuer.IssueRefresh(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(h.cfg.AccessTokenTTL.Seconds()),
	})
}

// HandleLogin verifies credentials and returns an access/refresh token pair.
// The username field also accepts the account email.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, err := db.GetUserByLogin(r.Context(), h.db, strings.TrimSpace(req.Username))
	if err != nil || !auth.VerifyPassword(req.Password, u.PasswordHash) {
		if telemetry.LoginsFailed != nil {
			telemetry.LoginsFailed.Inc()
		}
		// Same response whether the account exists or the password is wrong.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !u.IsActive {
		writeError(w, http.StatusForbidden, "account disabled")
		return
	}

	if telemetry.LoginsSucceeded != nil {
		telemetry.LoginsSucceeded.Inc()
	}
	slog.Info("login", slog.String("uid", u.UID.String()), slog.String("username", u.Username), slog.String("component", "auth"))
	h.issueTokens(w, u)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh exchanges a refresh token for a fresh pair. The presented
// refresh token is revoked so each one is single use.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing refresh_token")
		return
	}
	claims, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if h.blocklist != nil {
		revoked, err := h.blocklist.IsRevoked(r.Context(), claims.ID)
		if err == nil && revoked {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	u, err := db.GetUserByID(r.Context(), h.db, uid)
	if err != nil || !u.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	h.revoke(r, claims)
	h.issueTokens(w, u)
}

// HandleLogout revokes the presented access token, and the refresh token too
// when the body carries one.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims := identityFrom(r.Context())
	h.revoke(r, claims)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		if rc, err := h.issuer.ParseRefresh(req.RefreshToken); err == nil && rc.UserID == claims.UserID {
			h.revoke(r, rc)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// revoke puts a token's jti on the blocklist until the token would have
// expired anyway. Failures are logged, not surfaced; logout must not fail.
func (h *Handlers) revoke(r *http.Request, claims *auth.Claims) {
	if h.blocklist == nil || claims == nil || claims.ID == "" {
		return
	}
	expires := time.Now().Add(time.Minute)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := h.blocklist.Revoke(r.Context(), claims.ID, expires); err != nil {
		slog.Warn("failed to revoke token", slog.Any("err", err), slog.String("component", "auth"))
	}
}
