package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/unionadmin/benefits-session-service/internal/domain"
	"github.com/unionadmin/benefits-session-service/internal/observability"
	"github.com/unionadmin/benefits-session-service/internal/session"
)

// staticPrefixes never enter gate classification at all.
var staticPrefixes = []string{"/static/", "/assets/"}

// EdgeGate classifies every inbound page navigation and decides, from the
// locally verifiable session cookie alone, whether to let it through or
// redirect. It is stateless across requests and does no network I/O.
type EdgeGate struct {
	sessions          *session.Manager
	protectedPrefixes []string
	loginPath         string
	dashboardPath     string
	logger            *slog.Logger
}

func NewEdgeGate(sessions *session.Manager, protectedPrefixes []string, logger *slog.Logger) *EdgeGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &EdgeGate{
		sessions:          sessions,
		protectedPrefixes: protectedPrefixes,
		loginPath:         "/login",
		dashboardPath:     "/dashboard",
		logger:            logger,
	}
}

func (g *EdgeGate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if isStaticAsset(path) || strings.HasPrefix(path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			switch {
			case g.isProtected(path):
				if g.safeGet(r) == nil {
					observability.RecordGateDecision(r.Context(), "protected", "redirect_login")
					redirectToLogin(w, r, g.loginPath, path)
					return
				}
				observability.RecordGateDecision(r.Context(), "protected", "allow")
				next.ServeHTTP(w, r)

			case path == g.loginPath:
				// Fail-open: a broken validator must never strand the user
				// on an unreachable login page.
				if g.safeGet(r) != nil {
					observability.RecordGateDecision(r.Context(), "login", "redirect_dashboard")
					http.Redirect(w, r, g.dashboardPath, http.StatusFound)
					return
				}
				observability.RecordGateDecision(r.Context(), "login", "allow")
				next.ServeHTTP(w, r)

			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// safeGet never lets a validation panic escape the gate. For protected
// routes that collapses to "no session", which is fail-closed.
func (g *EdgeGate) safeGet(r *http.Request) (sess *domain.Session) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("session validation panicked in edge gate", "panic", rec)
			sess = nil
		}
	}()
	return g.sessions.Get(r)
}

func (g *EdgeGate) isProtected(path string) bool {
	for _, prefix := range g.protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func isStaticAsset(path string) bool {
	if path == "/favicon.ico" {
		return true
	}
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath, originalPath string) {
	target := loginPath + "?callbackUrl=" + url.QueryEscape(originalPath)
	http.Redirect(w, r, target, http.StatusFound)
}
