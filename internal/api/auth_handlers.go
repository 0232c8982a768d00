package api

import (
	"log/slog"
	"net/http"
	"time"

	mw "github.com/sipdeck/sipdeck/internal/api/middleware"
	"github.com/sipdeck/sipdeck/internal/database"
	"github.com/sipdeck/sipdeck/internal/database/models"
)

// credentialsRequest is the JSON request body for setup, login and token.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req *credentialsRequest) validate() string {
	if errMsg := validateUsername("username", req.Username); errMsg != "" {
		return errMsg
	}
	return validatePassword("password", req.Password)
}

// userResponse is the JSON shape for the authenticated user.
type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// handleSetup handles POST /api/v1/setup. Creates the first admin account.
// Once any account exists the endpoint is closed.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	count, err := s.admins.Count(r.Context())
	if err != nil {
		slog.Error("setup: failed to count admin users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if count > 0 {
		writeError(w, http.StatusConflict, "setup already completed")
		return
	}

	var req credentialsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		slog.Error("setup: failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := &models.AdminUser{Username: req.Username, PasswordHash: hash}
	if err := s.admins.Create(r.Context(), user); err != nil {
		slog.Error("setup: failed to create admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin account created", "username", user.Username)
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username})
}

// handleLogin handles POST /api/v1/auth/login. On success it sets the
// session and CSRF cookies for browser clients.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, ok := s.checkCredentials(w, r)
	if !ok {
		return
	}

	sess, err := s.sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.Error("login: failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	mw.SetSessionCookie(w, sess, r.TLS != nil)
	slog.Info("admin logged in", "username", user.Username)
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

// handleLogout handles POST /api/v1/auth/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := mw.SessionIDFromRequest(r); id != "" {
		s.sessions.Delete(id)
	}
	mw.ClearSessionCookie(w, r.TLS != nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe handles GET /api/v1/auth/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := mw.AdminUserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Username: u.Username})
}

// tokenResponse is the JSON response for POST /api/v1/auth/token.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleToken handles POST /api/v1/auth/token. Issues a JWT bearer token
// for programmatic clients in exchange for admin credentials.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	user, ok := s.checkCredentials(w, r)
	if !ok {
		return
	}

	token, expiresAt, err := mw.GenerateToken(s.jwtSecret, user.ID, user.Username)
	if err != nil {
		slog.Error("token: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("api token issued", "username", user.Username)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// checkCredentials reads and verifies a username/password body. On failure
// it writes the error response and returns ok=false. Invalid username and
// wrong password are indistinguishable to the caller.
func (s *Server) checkCredentials(w http.ResponseWriter, r *http.Request) (*models.AdminUser, bool) {
	var req credentialsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return nil, false
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return nil, false
	}

	user, err := s.admins.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("auth: failed to query admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return nil, false
	}

	match, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		slog.Warn("auth: failed login attempt", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return nil, false
	}

	return user, true
}
