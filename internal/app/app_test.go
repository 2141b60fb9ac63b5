package app

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/unionadmin/benefits-session-service/internal/config"
	"github.com/unionadmin/benefits-session-service/internal/observability"
)

func TestNewWiresDependencies(t *testing.T) {
	cfg := &config.Config{Env: "test"}
	logger := slog.Default()
	server := &http.Server{Addr: ":0"}
	runtime := &observability.Runtime{}

	a := New(cfg, logger, server, runtime)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Observability != runtime {
		t.Fatal("App must hold the dependencies it was given")
	}
}
