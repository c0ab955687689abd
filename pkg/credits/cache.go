package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/crmcore/pkg/observability"
)

// BalanceCache caches CheckBalance results. It is never consulted on the debit path;
// the service invalidates an entry after every committed balance change.
type BalanceCache interface {
	Get(ctx context.Context, tenantID string) (Balance, bool)
	Set(ctx context.Context, b Balance)
	Invalidate(ctx context.Context, tenantID string)
}

// RedisBalanceCache keeps balances in Redis, fronted by an optional in-process LRU.
// Cache failures are logged and treated as misses.
type RedisBalanceCache struct {
	redis   *redis.Client
	local   *lru.LRU[string, Balance]
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// RedisCacheOptions configures a RedisBalanceCache
type RedisCacheOptions struct {
	TTL time.Duration
	// LocalSize is the in-process LRU capacity, 0 disables it. Local entries expire
	// after TTL too, so another process's debit is visible at most TTL late.
	LocalSize int
	Metrics   *observability.Metrics
	Logger    *observability.Logger
}

// NewRedisBalanceCache creates a new Redis-backed balance cache
func NewRedisBalanceCache(client *redis.Client, opts RedisCacheOptions) (*RedisBalanceCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("balance cache TTL must be positive")
	}

	c := &RedisBalanceCache{
		redis:   client,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if opts.LocalSize > 0 {
		c.local = lru.NewLRU[string, Balance](opts.LocalSize, nil, opts.TTL)
	}
	return c, nil
}

func balanceKey(tenantID string) string {
	return "crmcore:balance:" + tenantID
}

// Get returns the cached balance for tenantID
func (c *RedisBalanceCache) Get(ctx context.Context, tenantID string) (Balance, bool) {
	if c.local != nil {
		if b, ok := c.local.Get(tenantID); ok {
			c.metrics.RecordCacheLookup("balance_local", true)
			return b, true
		}
		c.metrics.RecordCacheLookup("balance_local", false)
	}

	cached, err := c.redis.Get(ctx, balanceKey(tenantID)).Result()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Balance cache read failed")
		}
		c.metrics.RecordCacheLookup("balance_redis", false)
		return Balance{}, false
	}

	var b Balance
	if err := json.Unmarshal([]byte(cached), &b); err != nil {
		c.metrics.RecordCacheLookup("balance_redis", false)
		return Balance{}, false
	}
	c.metrics.RecordCacheLookup("balance_redis", true)
	if c.local != nil {
		c.local.Add(tenantID, b)
	}
	return b, true
}

// Set stores b
func (c *RedisBalanceCache) Set(ctx context.Context, b Balance) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, balanceKey(b.TenantID), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("tenant_id", b.TenantID).Warn("Balance cache write failed")
	}
	if c.local != nil {
		c.local.Add(b.TenantID, b)
	}
}

// Invalidate drops the cached balance for tenantID
func (c *RedisBalanceCache) Invalidate(ctx context.Context, tenantID string) {
	if c.local != nil {
		c.local.Remove(tenantID)
	}
	if err := c.redis.Del(ctx, balanceKey(tenantID)).Err(); err != nil && c.logger != nil {
		c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Balance cache invalidation failed")
	}
}

// noopCache is used when caching is disabled
type noopCache struct{}

func (noopCache) Get(context.Context, string) (Balance, bool) { return Balance{}, false }
func (noopCache) Set(context.Context, Balance)                {}
func (noopCache) Invalidate(context.Context, string)          {}
