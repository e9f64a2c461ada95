package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"trade-journal/config"

	"github.com/redis/go-redis/v9"
)

func TestUnhealthyServiceShortCircuits(t *testing.T) {
	cs := newService(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "test:")
	cs.checkInterval = time.Hour
	cs.lastCheck = time.Now()

	if _, err := cs.Get(context.Background(), "token"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Expected ErrCacheUnavailable, got %v", err)
	}
	if err := cs.Set(context.Background(), "token", "x", 0); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Expected ErrCacheUnavailable, got %v", err)
	}
}

func TestFailuresOpenBreaker(t *testing.T) {
	cs := newService(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "test:")
	cs.healthy = true

	for i := 0; i < cs.maxFailures; i++ {
		cs.recordFailure()
	}
	if cs.IsHealthy() {
		t.Error("Expected service to be unhealthy after max failures")
	}

	cs.recordSuccess()
	if !cs.IsHealthy() || cs.failureCount != 0 {
		t.Error("Expected success to reset the breaker")
	}
}

func TestKeyPrefix(t *testing.T) {
	cs := newService(nil, "journal:session:")
	if k := cs.Key("token"); k != "journal:session:token" {
		t.Errorf("Expected journal:session:token, got %s", k)
	}
}

func TestDisabledConfigRejected(t *testing.T) {
	if _, err := NewCacheService(config.RedisConfig{Enabled: false}, ""); err == nil {
		t.Error("Expected error for disabled redis")
	}
}

// TestRedisRoundTrip runs only when TEST_REDIS_ADDR points at a live server
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: addr, PoolSize: 2}, "journal:test:")
	if err != nil {
		t.Fatalf("NewCacheService failed: %v", err)
	}
	defer cs.Close()
	ctx := context.Background()

	if err := cs.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, err := cs.Get(ctx, "k"); err != nil || v != "v" {
		t.Errorf("Expected v, got %q (%v)", v, err)
	}
	if err := cs.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cs.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}
