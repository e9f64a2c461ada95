// Package loader loads page bundles with a one-shot recovery: the first
// failure reloads the asset manifest once and tries again, a failure after
// that reload is returned to the caller, and a success re-arms the guard.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trade-journal/internal/cache"
	"trade-journal/internal/logging"
)

// DefaultFlagKey marks that a forced reload already happened
const DefaultFlagKey = "page-has-been-force-refreshed"

// FlagStore holds the reload flag for the session
type FlagStore interface {
	IsSet(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}

// MemoryFlags keeps flags in process
type MemoryFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{flags: make(map[string]bool)}
}

func (m *MemoryFlags) IsSet(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[key], nil
}

func (m *MemoryFlags) Set(_ context.Context, key string) error {
	m.mu.Lock()
	m.flags[key] = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryFlags) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.flags, key)
	m.mu.Unlock()
	return nil
}

// RedisFlags stores flags through the cache service so they survive a
// daemon restart
type RedisFlags struct {
	cache *cache.CacheService
}

func NewRedisFlags(cs *cache.CacheService) *RedisFlags {
	return &RedisFlags{cache: cs}
}

func (r *RedisFlags) IsSet(ctx context.Context, key string) (bool, error) {
	v, err := r.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (r *RedisFlags) Set(ctx context.Context, key string) error {
	return r.cache.Set(ctx, key, "true", 0)
}

func (r *RedisFlags) Clear(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}

// Guard wraps loads with the reload-once policy
type Guard struct {
	flags  FlagStore
	key    string
	reload func(ctx context.Context) error
	logger *logging.Logger

	mu      sync.Mutex
	reloads int
}

// NewGuard creates a guard. reload is called at most once per failure run.
func NewGuard(flags FlagStore, key string, reload func(ctx context.Context) error) *Guard {
	if flags == nil {
		flags = NewMemoryFlags()
	}
	if key == "" {
		key = DefaultFlagKey
	}
	return &Guard{
		flags:  flags,
		key:    key,
		reload: reload,
		logger: logging.WithComponent("loader"),
	}
}

// Load runs load. On the first failure it sets the flag, reloads and runs
// load again; while the flag is set a failure is returned as is. Any
// success clears the flag.
func (g *Guard) Load(ctx context.Context, name string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	data, err := load(ctx)
	if err == nil {
		g.clear(ctx)
		return data, nil
	}

	set, ferr := g.flags.IsSet(ctx, g.key)
	if ferr != nil {
		g.logger.WithError(ferr).Warn("Reload flag unavailable")
	}
	if set {
		return nil, fmt.Errorf("loading %s after reload: %w", name, err)
	}

	if ferr := g.flags.Set(ctx, g.key); ferr != nil {
		g.logger.WithError(ferr).Warn("Failed to set reload flag")
	}
	g.mu.Lock()
	g.reloads++
	g.mu.Unlock()
	g.logger.Warn("Bundle load failed, reloading once", "bundle", name, "error", err)

	if g.reload != nil {
		if rerr := g.reload(ctx); rerr != nil {
			return nil, fmt.Errorf("reloading after %s failed: %w", name, rerr)
		}
	}

	data, err = load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s after reload: %w", name, err)
	}
	g.clear(ctx)
	return data, nil
}

// Reloads returns how many forced reloads happened
func (g *Guard) Reloads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reloads
}

func (g *Guard) clear(ctx context.Context) {
	if err := g.flags.Clear(ctx, g.key); err != nil {
		g.logger.WithError(err).Debug("Failed to clear reload flag")
	}
}
