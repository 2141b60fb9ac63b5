package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/unionadmin/benefits-session-service/internal/config"
)

type AppMetrics struct {
	loginCounter      metric.Int64Counter
	refreshCounter    metric.Int64Counter
	logoutCounter     metric.Int64Counter
	validationCounter metric.Int64Counter
	gateCounter       metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("benefits-session-service")
	loginCounter, err := meter.Int64Counter("auth.login.attempts")
	if err != nil {
		return nil, err
	}
	refreshCounter, err := meter.Int64Counter("auth.refresh.attempts")
	if err != nil {
		return nil, err
	}
	logoutCounter, err := meter.Int64Counter("auth.logout.attempts")
	if err != nil {
		return nil, err
	}
	validationCounter, err := meter.Int64Counter("session.validation.outcomes")
	if err != nil {
		return nil, err
	}
	gateCounter, err := meter.Int64Counter("edge_gate.decisions")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		loginCounter:      loginCounter,
		refreshCounter:    refreshCounter,
		logoutCounter:     logoutCounter,
		validationCounter: validationCounter,
		gateCounter:       gateCounter,
	}
	metricsMu.Unlock()

	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordLoginAttempt(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRefreshAttempt(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordLogout(ctx context.Context) {
	m := current()
	if m == nil {
		return
	}
	m.logoutCounter.Add(ctx, 1)
}

// RecordSessionValidation counts validation outcomes by coarse reason. The
// reason stays inside telemetry; responses never carry it.
func RecordSessionValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.validationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordGateDecision(ctx context.Context, route, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.gateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route_class", route),
		attribute.String("decision", decision),
	))
}
