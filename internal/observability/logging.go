package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/unionadmin/benefits-session-service/internal/config"
)

// InitLogging builds the process logger. With OTel enabled, records are
// bridged to the OTLP log pipeline; otherwise they go to stderr as text.
// The returned provider is nil when the bridge is disabled.
func InitLogging(ctx context.Context, cfg *config.Config) (*slog.Logger, *sdklog.LoggerProvider, error) {
	level := parseLevel(cfg.LogLevel)
	if !cfg.OTELEnabled {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return logger, nil, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.OTELServiceName),
		semconv.DeploymentEnvironment(cfg.Env),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("create log resource: %w", err)
	}
	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	logger := slog.New(otelslog.NewHandler("benefits-session-service", otelslog.WithLoggerProvider(provider)))
	return logger, provider, nil
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
