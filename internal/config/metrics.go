package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configCounter     metric.Int64Counter
)

// RecordLoadEvent counts config load outcomes so a bad deploy shows up on the
// dashboard before it shows up as a pager.
func RecordLoadEvent(ctx context.Context, profile, outcome string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("benefits-session-service").Int64Counter("config.load.events")
		if cerr == nil {
			configCounter = counter
		}
	})
	if configCounter == nil {
		return
	}
	configCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	))
}

func normalizeProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "validate config:"):
		return "validation"
	case strings.Contains(msg, "decode config:"):
		return "decode"
	default:
		return "load"
	}
}
