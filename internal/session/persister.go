package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"trade-journal/internal/cache"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrNoValue is returned by a Persister for keys it does not hold
var ErrNoValue = errors.New("session: no stored value")

// Persister is a string key/value store with local-storage semantics
type Persister interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
	Name() string
}

// MemoryPersister keeps values for the life of the process
type MemoryPersister struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string]string)}
}

func (m *MemoryPersister) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

func (m *MemoryPersister) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.values, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) Name() string { return "memory" }

const nonceSize = 24

// FilePersister stores all keys in one JSON file. With a seal key the file
// is encrypted with NaCl secretbox (nonce followed by ciphertext).
type FilePersister struct {
	mu   sync.Mutex
	path string
	key  *[32]byte
}

// NewFilePersister creates a persister for path. sealKey is either empty or
// 64 hex characters.
func NewFilePersister(path, sealKey string) (*FilePersister, error) {
	fp := &FilePersister{path: path}
	if sealKey == "" {
		return fp, nil
	}
	raw, err := hex.DecodeString(sealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session seal key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("session seal key must be 32 bytes, got %d", len(raw))
	}
	fp.key = new([32]byte)
	copy(fp.key[:], raw)
	return fp, nil
}

func (f *FilePersister) Name() string { return "file" }

func (f *FilePersister) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

func (f *FilePersister) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

func (f *FilePersister) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	return f.write(values)
}

func (f *FilePersister) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}

	if f.key != nil {
		if len(data) < nonceSize+secretbox.Overhead {
			return nil, errors.New("session file is too short to be sealed")
		}
		var nonce [nonceSize]byte
		copy(nonce[:], data[:nonceSize])
		plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, f.key)
		if !ok {
			return nil, errors.New("session file could not be unsealed")
		}
		data = plain
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return values, nil
}

func (f *FilePersister) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	if f.key != nil {
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("failed to generate nonce: %w", err)
		}
		data = secretbox.Seal(nonce[:], data, &nonce, f.key)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// RedisPersister stores each key under the cache service's prefix
type RedisPersister struct {
	cache *cache.CacheService
}

func NewRedisPersister(cs *cache.CacheService) *RedisPersister {
	return &RedisPersister{cache: cs}
}

func (r *RedisPersister) Name() string { return "redis" }

func (r *RedisPersister) Get(ctx context.Context, key string) (string, error) {
	v, err := r.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", ErrNoValue
	}
	return v, err
}

func (r *RedisPersister) Set(ctx context.Context, key, value string) error {
	return r.cache.Set(ctx, key, value, 0)
}

func (r *RedisPersister) Remove(ctx context.Context, keys ...string) error {
	return r.cache.Delete(ctx, keys...)
}
