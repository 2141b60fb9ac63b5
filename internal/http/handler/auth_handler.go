package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unionadmin/benefits-session-service/internal/directory"
	"github.com/unionadmin/benefits-session-service/internal/http/middleware"
	"github.com/unionadmin/benefits-session-service/internal/http/response"
	"github.com/unionadmin/benefits-session-service/internal/observability"
	"github.com/unionadmin/benefits-session-service/internal/session"
)

type AuthHandler struct {
	sessions *session.Manager
	dir      directory.Directory
	logger   *slog.Logger
}

func NewAuthHandler(sessions *session.Manager, dir directory.Directory, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{sessions: sessions, dir: dir, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      any   `json:"user"`
	ExpiresAt int64 `json:"expiresAt"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Login exchanges credentials for a session cookie. Accepts JSON from the
// dashboard front-end and form posts from the built-in login page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}
	user, err := h.dir.Authenticate(req.Username, req.Password)
	if err != nil {
		observability.RecordLoginAttempt(r.Context(), "rejected")
		observability.Audit(r, "login_rejected", "username", req.Username)
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}
	sess, err := h.sessions.Create(w, *user)
	if err != nil {
		observability.RecordLoginAttempt(r.Context(), "error")
		h.logger.ErrorContext(r.Context(), "session creation failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not create session")
		return
	}
	observability.RecordLoginAttempt(r.Context(), "success")
	observability.Audit(r, "login_success", "user_id", user.ID)
	response.JSON(w, r, http.StatusOK, sessionResponse{User: sess.User, ExpiresAt: sess.ExpiresAt.Unix()})
}

// Refresh rotates the session cookie from the refresh token it carries.
// An invalid refresh token is terminal: the cookie is cleared so the client
// cannot keep retrying a credential that will never work again.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.sessions.RefreshTokenFromRequest(r)
	if refreshToken == "" {
		observability.RecordRefreshAttempt(r.Context(), "missing")
		response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH", "no valid session")
		return
	}
	sess, err := h.sessions.Refresh(w, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			observability.RecordRefreshAttempt(r.Context(), "rejected")
			observability.Audit(r, "refresh_rejected")
			h.sessions.Destroy(w)
			response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH", "no valid session")
			return
		}
		observability.RecordRefreshAttempt(r.Context(), "error")
		h.logger.ErrorContext(r.Context(), "refresh failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not refresh session")
		return
	}
	observability.RecordRefreshAttempt(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, sessionResponse{User: sess.User, ExpiresAt: sess.ExpiresAt.Unix()})
}

// Logout clears the cookie. It succeeds whether or not a session existed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w)
	observability.RecordLogout(r.Context())
	observability.Audit(r, "logout")
	w.WriteHeader(http.StatusNoContent)
}

// Token returns the bearer credential for backend API calls. Requires
// AuthMiddleware upstream.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "no valid session")
		return
	}
	response.JSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: sess.AccessToken,
		ExpiresAt:   sess.ExpiresAt.Unix(),
	})
}

// Session reports the current session's profile and expiry. This is the
// endpoint client-side checkAuth polls.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "no valid session")
		return
	}
	response.JSON(w, r, http.StatusOK, sessionResponse{User: sess.User, ExpiresAt: sess.ExpiresAt.Unix()})
}
