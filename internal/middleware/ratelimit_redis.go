package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so limits
// hold across API replicas. It uses a fixed window counter (INCR + EXPIRE).
//
// On Redis errors the store fails open: requests are allowed and the error
// is counted, so a Redis outage degrades rate limiting rather than the API.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	logger  *slog.Logger
	prefix  string
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
// metrics and logger may be nil.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{
		client:  client,
		metrics: metrics,
		logger:  logger,
		prefix:  "ratelimit:",
	}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	redisKey := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// Refresh the expiry only when the counter is new; NX keeps the window fixed.
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	ttl := pipe.TTL(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		s.failOpen(ctx, key, err)
		return true, config.RequestsPerWindow, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, config.RequestsPerWindow - int(count), 0
	}

	retryAfter := int(ttl.Val().Seconds())
	if retryAfter <= 0 {
		retryAfter = int(config.WindowDuration.Seconds())
	}
	return false, 0, retryAfter
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, key string, err error) {
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
	s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
		"key", key,
		"error", err,
	)
}

// Ping verifies connectivity to Redis. Useful for readiness checks.
func (s *RedisRateLimitStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
