package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/unionadmin/benefits-session-service/internal/http/handler"
	"github.com/unionadmin/benefits-session-service/internal/http/middleware"
	"github.com/unionadmin/benefits-session-service/internal/http/response"
	"github.com/unionadmin/benefits-session-service/internal/session"
)

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	Sessions        *session.Manager
	EdgeGate        *middleware.EdgeGate
	AuthRateLimiter func(http.Handler) http.Handler
	EnableOTelHTTP  bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(dep.EdgeGate.Middleware())

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/auth", func(r chi.Router) {
		if dep.AuthRateLimiter != nil {
			r.With(dep.AuthRateLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(dep.AuthRateLimiter).Post("/refresh", dep.AuthHandler.Refresh)
		} else {
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
		}
		r.Post("/logout", dep.AuthHandler.Logout)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.Sessions))
			r.Get("/token", dep.AuthHandler.Token)
			r.Get("/session", dep.AuthHandler.Session)
		})
	})

	r.Get("/", handler.HomePage)
	r.Get("/login", handler.LoginPage)
	r.Get("/dashboard", handler.DashboardPage)
	r.Get("/dashboard/*", handler.DashboardPage)

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
