// Package cache provides a small Redis key/value store with graceful
// degradation, shared by the session persister and the page loader flags.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trade-journal/config"
	"trade-journal/internal/logging"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheUnavailable is returned while Redis is marked unhealthy
	ErrCacheUnavailable = errors.New("cache unavailable - Redis is not healthy")

	// ErrCacheMiss is returned when a key does not exist
	ErrCacheMiss = errors.New("cache miss")
)

// CacheService wraps a Redis client. After maxFailures consecutive errors
// it stops calling Redis and returns ErrCacheUnavailable until a background
// ping succeeds again.
type CacheService struct {
	client       *redis.Client
	prefix       string
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
	logger        *logging.Logger
}

// NewCacheService connects to Redis. A failed initial ping returns the
// service in degraded mode rather than an error.
func NewCacheService(cfg config.RedisConfig, prefix string) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := newService(client, prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn("Initial Redis connection failed", "address", cfg.Address, "error", err)
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.logger.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

func newService(client *redis.Client, prefix string) *CacheService {
	return &CacheService{
		client:        client,
		prefix:        prefix,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		logger:        logging.WithComponent("cache"),
	}
}

// IsHealthy returns whether Redis is currently available
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn("Redis marked unhealthy", "failures", cs.failureCount)
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info("Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth pings in the background once checkInterval has passed
// since the service went unhealthy
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	if shouldCheck {
		cs.lastCheck = time.Now()
	}
	cs.mu.Unlock()

	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Key returns the namespaced Redis key
func (cs *CacheService) Key(key string) string {
	return cs.prefix + key
}

// Get returns ErrCacheMiss for absent keys
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return "", ErrCacheUnavailable
	}

	result, err := cs.client.Get(ctx, cs.Key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cs.recordSuccess()
			return "", ErrCacheMiss
		}
		cs.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores value; ttl 0 means no expiry
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}

	if err := cs.client.Set(ctx, cs.Key(key), value, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes keys
func (cs *CacheService) Delete(ctx context.Context, keys ...string) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cs.Key(k)
	}
	if err := cs.client.Del(ctx, full...).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

func (cs *CacheService) Close() error {
	return cs.client.Close()
}
