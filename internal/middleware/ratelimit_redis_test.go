package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTestClient connects to a local Redis instance, skipping the test when
// none is available.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestRedisRateLimitStore_Allow tests the Redis rate limiter with a real Redis instance.
func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := redisTestClient(t)

	store := NewRedisRateLimitStore(client, nil, nil)
	config := RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}

	testKey := "test-redis-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ctx := context.Background()
	defer client.Del(ctx, store.prefix+testKey)

	for i := 0; i < 5; i++ {
		allowed, remaining, retryAfter := store.Allow(ctx, testKey, config)
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if want := 5 - (i + 1); remaining != want {
			t.Errorf("request %d: expected remaining=%d, got %d", i+1, want, remaining)
		}
		if retryAfter != 0 {
			t.Errorf("request %d: expected retryAfter=0, got %d", i+1, retryAfter)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, testKey, config)
	if allowed {
		t.Error("6th request should be blocked")
	}
	if remaining != 0 {
		t.Errorf("expected remaining=0 when blocked, got %d", remaining)
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("expected retryAfter between 1 and 60, got %d", retryAfter)
	}
}

// TestRedisRateLimitStore_DifferentKeys tests that different keys have independent limits.
func TestRedisRateLimitStore_DifferentKeys(t *testing.T) {
	client := redisTestClient(t)

	store := NewRedisRateLimitStore(client, nil, nil)
	config := RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}

	key1 := "test-redis-key1-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	key2 := "test-redis-key2-" + strconv.FormatInt(time.Now().UnixNano()+1, 10)
	ctx := context.Background()
	defer client.Del(ctx, store.prefix+key1, store.prefix+key2)

	allowed1, _, _ := store.Allow(ctx, key1, config)
	allowed2, _, _ := store.Allow(ctx, key2, config)
	if !allowed1 || !allowed2 {
		t.Error("both keys should be allowed their first request")
	}

	blocked1, _, _ := store.Allow(ctx, key1, config)
	blocked2, _, _ := store.Allow(ctx, key2, config)
	if blocked1 || blocked2 {
		t.Error("both keys should be blocked after reaching limit")
	}
}

// TestRedisRateLimitStore_WindowExpiry tests that limits reset after the window expires.
func TestRedisRateLimitStore_WindowExpiry(t *testing.T) {
	client := redisTestClient(t)

	store := NewRedisRateLimitStore(client, nil, nil)
	config := RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    100 * time.Millisecond,
	}

	testKey := "test-redis-expiry-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ctx := context.Background()
	defer client.Del(ctx, store.prefix+testKey)

	allowed, _, _ := store.Allow(ctx, testKey, config)
	if !allowed {
		t.Error("first request should be allowed")
	}

	allowed, _, _ = store.Allow(ctx, testKey, config)
	if allowed {
		t.Error("second request should be blocked")
	}

	time.Sleep(150 * time.Millisecond)

	allowed, _, _ = store.Allow(ctx, testKey, config)
	if !allowed {
		t.Error("request after window expiry should be allowed")
	}
}

// TestRedisRateLimitStore_FailOpen tests that the store fails open on Redis errors.
func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	// Invalid port simulates a connection failure
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:9999",
	})
	defer client.Close()

	metrics := NewMetrics()
	store := NewRedisRateLimitStore(client, metrics, nil)
	config := RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}

	allowed, _, retryAfter := store.Allow(context.Background(), "test-key", config)
	if !allowed {
		t.Error("should fail open and allow request when Redis is unavailable")
	}
	if retryAfter != 0 {
		t.Errorf("expected retryAfter=0 on fail-open, got %d", retryAfter)
	}
}
