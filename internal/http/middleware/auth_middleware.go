package middleware

import (
	"context"
	"net/http"

	"github.com/unionadmin/benefits-session-service/internal/domain"
	"github.com/unionadmin/benefits-session-service/internal/http/response"
	"github.com/unionadmin/benefits-session-service/internal/observability"
	"github.com/unionadmin/benefits-session-service/internal/session"
)

type contextKey string

const SessionContextKey contextKey = "session"

// AuthMiddleware guards API routes. Unlike the edge gate it answers 401
// rather than redirecting, since API callers are programs, not browsers.
func AuthMiddleware(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.Get(r)
			if sess == nil {
				observability.RecordSessionValidation(r.Context(), "invalid", "api")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "no valid session")
				return
			}
			observability.RecordSessionValidation(r.Context(), "valid", "api")
			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return s, ok
}
