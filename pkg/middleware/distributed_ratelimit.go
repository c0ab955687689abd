package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/crmcore/pkg/observability"
)

// RateLimitConfig defines a fixed-window rate limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns the default per-tenant limit
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// TenantRateLimiter limits requests per tenant with a Redis counter shared by every
// server instance.
type TenantRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
	logger *observability.Logger
}

// NewTenantRateLimiter creates a new Redis-backed rate limiter
func NewTenantRateLimiter(redisClient *redis.Client, config RateLimitConfig, logger *observability.Logger) *TenantRateLimiter {
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &TenantRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: "crmcore:ratelimit:tenant",
		logger: logger,
	}
}

// Allow increments the tenant's counter for the current window and reports whether it
// is still within the limit, along with the number of requests left.
func (rl *TenantRateLimiter) Allow(ctx context.Context, tenantID string) (bool, int, error) {
	key := fmt.Sprintf("%s:%s", rl.prefix, tenantID)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}
	// first hit opens the window
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.config.WindowDuration).Err(); err != nil {
			return true, 0, fmt.Errorf("redis error: %w", err)
		}
	}

	remaining := rl.config.RequestsPerWindow - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.config.RequestsPerWindow), remaining, nil
}

// TTL returns the time until the tenant's window resets
func (rl *TenantRateLimiter) TTL(ctx context.Context, tenantID string) (time.Duration, error) {
	return rl.redis.TTL(ctx, fmt.Sprintf("%s:%s", rl.prefix, tenantID)).Result()
}

// Middleware applies the limit to tenant-scoped routes. It must run after
// TenantContextMiddleware. Redis failures let the request through.
func (rl *TenantRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := GetAuthContext(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		allowed, remaining, err := rl.Allow(ctx, ac.TenantID())
		if err != nil {
			observability.FromContextOr(ctx, rl.logger).WithError(err).Warn("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			retryAfter := rl.config.WindowDuration
			if ttl, err := rl.TTL(ctx, ac.TenantID()); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
