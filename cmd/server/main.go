package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/unionadmin/benefits-session-service/internal/app"
	"github.com/unionadmin/benefits-session-service/internal/config"
	"github.com/unionadmin/benefits-session-service/internal/directory"
	"github.com/unionadmin/benefits-session-service/internal/domain"
	"github.com/unionadmin/benefits-session-service/internal/http/handler"
	"github.com/unionadmin/benefits-session-service/internal/http/middleware"
	"github.com/unionadmin/benefits-session-service/internal/http/router"
	"github.com/unionadmin/benefits-session-service/internal/observability"
	"github.com/unionadmin/benefits-session-service/internal/security"
	"github.com/unionadmin/benefits-session-service/internal/session"
)

func main() {
	root := &cobra.Command{
		Use:   "benefits-sessiond",
		Short: "Session and authentication service for the union benefits dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	config.RecordLoadEvent(ctx, envOr("APP_ENV", "local"), outcome(err), err)
	if err != nil {
		return err
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	dir := directory.NewInMemory()
	if err := seedAdmin(dir); err != nil {
		return err
	}

	codec := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.JWTRefreshSecret)
	sessions := session.NewManager(codec, session.Config{
		CookieName: cfg.SessionCookieName,
		MaxAge:     cfg.SessionMaxAge(),
		RefreshTTL: cfg.RefreshTTL(),
		Secure:     cfg.CookieSecure(),
	}, dir.Lookup, logger)

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = middleware.NewRedisLimiter(client, cfg.AuthRateLimitRPM, time.Minute)
		logger.Info("auth rate limiting backed by redis", "addr", cfg.RedisAddr)
	} else {
		limiter = middleware.NewLocalLimiter(cfg.AuthRateLimitRPM, time.Minute)
	}

	h := router.NewRouter(router.Dependencies{
		AuthHandler:     handler.NewAuthHandler(sessions, dir, logger),
		Sessions:        sessions,
		EdgeGate:        middleware.NewEdgeGate(sessions, cfg.ProtectedRoutePrefixes(), logger),
		AuthRateLimiter: middleware.NewRateLimiter(limiter, logger).Middleware(),
		EnableOTelHTTP:  cfg.OTELEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a := app.New(cfg, logger, server, runtime)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// seedAdmin registers the bootstrap operator account. Real operator accounts
// live with the benefits backend; this one exists so a fresh deployment can
// be signed into at all.
func seedAdmin(dir *directory.InMemory) error {
	username := envOr("DASHBOARD_ADMIN_USER", "admin")
	password := os.Getenv("DASHBOARD_ADMIN_PASSWORD")
	if password == "" {
		return errors.New("DASHBOARD_ADMIN_PASSWORD must be set")
	}
	return dir.AddUser(username, password, domain.UserProfile{
		ID:    "admin",
		Name:  "Administrator",
		Email: envOr("DASHBOARD_ADMIN_EMAIL", ""),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
