package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unionadmin/benefits-session-service/internal/http/response"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter keyed by caller identity. Auth endpoints
// are the only consumers; everything else is unmetered.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type RateLimiter struct {
	limiter Limiter
	logger  *slog.Logger
}

func NewRateLimiter(limiter Limiter, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{limiter: limiter, logger: logger}
}

// Middleware rejects over-limit callers with 429. A limiter store error
// fails open: losing redis must not lock every member out of login.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			decision, err := rl.limiter.Allow(r.Context(), key)
			if err != nil {
				rl.logger.Warn("rate limiter unavailable, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds()+0.5)))
				}
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host + ":" + r.URL.Path
}

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter shares one counter window per key across replicas.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) Limiter {
	return &redisLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:"}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	if count.Val() > int64(l.limit) {
		windowEnd := time.Unix((bucket+1)*int64(l.window.Seconds()), 0)
		return Decision{Allowed: false, RetryAfter: time.Until(windowEnd)}, nil
	}
	return Decision{Allowed: true}, nil
}

type localLimiter struct {
	mu     sync.Mutex
	counts map[string]*localWindow
	limit  int
	window time.Duration
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewLocalLimiter is the single-process fallback used when no redis address
// is configured.
func NewLocalLimiter(limit int, window time.Duration) Limiter {
	return &localLimiter{counts: make(map[string]*localWindow), limit: limit, window: window}
}

func (l *localLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counts[key]
	if !ok || now.After(w.resetAt) {
		w = &localWindow{resetAt: now.Add(l.window)}
		l.counts[key] = w
	}
	w.count++
	if w.count > l.limit {
		return Decision{Allowed: false, RetryAfter: time.Until(w.resetAt)}, nil
	}
	// Opportunistic cleanup so abandoned keys do not accumulate.
	if len(l.counts) > 4096 {
		for k, win := range l.counts {
			if now.After(win.resetAt) {
				delete(l.counts, k)
			}
		}
	}
	return Decision{Allowed: true}, nil
}
