package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unionadmin/benefits-session-service/internal/domain"
	"github.com/unionadmin/benefits-session-service/internal/security"
)

// ErrInvalidRefreshToken is terminal for the current session: the caller must
// treat it as a forced logout, never as something to retry.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// cookieSeparator joins the access and refresh tokens inside the single
// session cookie. '|' is a legal cookie-octet and never appears in a JWT.
const cookieSeparator = "|"

type Config struct {
	CookieName string
	MaxAge     time.Duration
	RefreshTTL time.Duration
	Secure     bool
}

// UserLookup resolves the profile snapshot embedded in re-issued tokens.
// Refresh claims carry only the subject, so rotation needs a directory hit.
type UserLookup func(userID string) (*domain.UserProfile, error)

// Manager exclusively owns the cookie-backed session representation. Route
// handlers and the edge gate go through it; nothing else writes the cookie.
type Manager struct {
	codec  *security.JWTManager
	cfg    Config
	lookup UserLookup
	logger *slog.Logger
}

func NewManager(codec *security.JWTManager, cfg Config, lookup UserLookup, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{codec: codec, cfg: cfg, lookup: lookup, logger: logger}
}

// Create issues a fresh access/refresh pair for user and sets the session
// cookie on the response.
func (m *Manager) Create(w http.ResponseWriter, user domain.UserProfile) (*domain.Session, error) {
	access, err := m.codec.SignAccessToken(user.ID, user.Name, user.Email, m.cfg.MaxAge)
	if err != nil {
		return nil, err
	}
	refresh, err := m.codec.SignRefreshToken(user.ID, m.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(m.cfg.MaxAge),
		User:         user,
	}
	m.setCookie(w, access+cookieSeparator+refresh, int(m.cfg.MaxAge.Seconds()))
	return sess, nil
}

// Get returns the valid session carried by the request, or nil. A missing
// cookie, malformed token, bad signature and expired token are all just
// "no session" to the caller; the distinction is logged, never returned.
func (m *Manager) Get(r *http.Request) *domain.Session {
	raw := security.GetCookie(r, m.cfg.CookieName)
	if raw == "" {
		return nil
	}
	access, refresh, ok := splitCookie(raw)
	if !ok {
		return nil
	}
	claims, err := m.codec.VerifyAccessToken(access)
	if err != nil {
		var verr *security.VerificationError
		if errors.As(err, &verr) {
			m.logger.Debug("session cookie rejected", "reason", string(verr.Reason))
		}
		return nil
	}
	return &domain.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
		User: domain.UserProfile{
			ID:    claims.Subject,
			Name:  claims.Name,
			Email: claims.Email,
		},
	}
}

// RefreshTokenFromRequest extracts the refresh half of the session cookie
// without validating the access half; an expired access token must not block
// the refresh path.
func (m *Manager) RefreshTokenFromRequest(r *http.Request) string {
	raw := security.GetCookie(r, m.cfg.CookieName)
	if raw == "" {
		return ""
	}
	_, refresh, ok := splitCookie(raw)
	if !ok {
		return ""
	}
	return refresh
}

// Refresh exchanges a still-valid refresh token for a new token pair and
// rotates the cookie. Any validation failure is ErrInvalidRefreshToken.
func (m *Manager) Refresh(w http.ResponseWriter, refreshToken string) (*domain.Session, error) {
	claims, err := m.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := m.lookup(claims.Subject)
	if err != nil {
		m.logger.Warn("refresh rejected: subject no longer resolvable", "subject", claims.Subject)
		return nil, ErrInvalidRefreshToken
	}
	return m.Create(w, *user)
}

// Destroy clears the session cookie.
func (m *Manager) Destroy(w http.ResponseWriter) {
	m.setCookie(w, "", -1)
}

// CookieName is exposed for the API auth middleware, which reads but never
// writes the cookie.
func (m *Manager) CookieName() string { return m.cfg.CookieName }

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func splitCookie(raw string) (access, refresh string, ok bool) {
	access, refresh, ok = strings.Cut(raw, cookieSeparator)
	if !ok || access == "" || refresh == "" {
		return "", "", false
	}
	return access, refresh, true
}
