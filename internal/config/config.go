package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

type Config struct {
	Env      string `env:"APP_ENV,default=local"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	JWTSecret        string `env:"JWT_SECRET,required"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET,required"`
	JWTIssuer        string `env:"JWT_ISSUER,default=benefits-session-service"`
	JWTAudience      string `env:"JWT_AUDIENCE,default=benefits-dashboard"`

	SessionCookieName string `env:"SESSION_COOKIE_NAME,default=union-session"`
	SessionMaxAgeSec  int    `env:"SESSION_MAX_AGE,default=86400"`
	RefreshTTLSec     int    `env:"REFRESH_TOKEN_TTL,default=604800"`

	// Client refresh behaviour, surfaced so the dashboard and this service
	// agree on the lead window.
	RefreshLead        time.Duration `env:"REFRESH_LEAD_TIME,default=2m"`
	RevalidateInterval time.Duration `env:"REVALIDATE_INTERVAL,default=5m"`

	ProtectedPrefixes string `env:"PROTECTED_ROUTE_PREFIXES,default=/dashboard"`

	RedisAddr        string `env:"REDIS_ADDR,default="`
	AuthRateLimitRPM int    `env:"AUTH_RATE_LIMIT_RPM,default=30"`

	OTELEnabled               bool          `env:"OTEL_ENABLED,default=false"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT,default=localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE,default=true"`
	OTELServiceName           string        `env:"OTEL_SERVICE_NAME,default=benefits-session-service"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL,default=30s"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load decodes the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if len(c.JWTRefreshSecret) < 32 {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least 32 bytes, got %d", len(c.JWTRefreshSecret))
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.SessionMaxAgeSec <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAgeSec)
	}
	if c.RefreshTTLSec < c.SessionMaxAgeSec {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%d) must not be shorter than SESSION_MAX_AGE (%d)", c.RefreshTTLSec, c.SessionMaxAgeSec)
	}
	if c.RefreshLead <= 0 {
		return fmt.Errorf("REFRESH_LEAD_TIME must be positive")
	}
	if len(c.ProtectedRoutePrefixes()) == 0 {
		return fmt.Errorf("PROTECTED_ROUTE_PREFIXES must name at least one prefix")
	}
	return nil
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeSec) * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSec) * time.Second
}

// ProtectedRoutePrefixes splits the comma-separated prefix list, dropping
// blanks and anything not rooted at "/".
func (c *Config) ProtectedRoutePrefixes() []string {
	var out []string
	for _, p := range strings.Split(c.ProtectedPrefixes, ",") {
		p = strings.TrimSpace(p)
		if p == "" || !strings.HasPrefix(p, "/") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CookieSecure reports whether the session cookie carries the Secure
// attribute. Only the local profile runs over plain HTTP.
func (c *Config) CookieSecure() bool {
	return !strings.EqualFold(c.Env, "local")
}
