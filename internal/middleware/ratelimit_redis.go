package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so rate
// limit state is shared across API replicas. It uses a fixed window counter
// (INCR + EXPIRE on first increment).
//
// Redis failures fail open: a request is allowed rather than rejected when
// the limiter state is unavailable. The metrics counter, when configured,
// tracks how often that happens.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a new Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// NewRedisRateLimitStoreWithMetrics creates a Redis-backed store that records
// fail-open events to the given metrics.
func NewRedisRateLimitStoreWithMetrics(client *redis.Client, metrics *Metrics) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, metrics: metrics}
}

// ratelimitKeyPrefix namespaces limiter keys in Redis.
const ratelimitKeyPrefix = "ratelimit:"

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := ratelimitKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// NX: set the expiry only when the key is new, so the window is anchored
	// at the first request.
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "rate limiter redis error, failing open", "error", err)
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		return true, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		return false, 1
	}
	retryAfter := int(ttl / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}
