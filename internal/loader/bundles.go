package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ManifestFile maps page names to hashed bundle paths
const ManifestFile = "manifest.json"

var ErrUnknownPage = errors.New("loader: unknown page")

// Bundles serves page bundles from a static build directory
type Bundles struct {
	dir   string
	guard *Guard

	mu       sync.RWMutex
	manifest map[string]string
}

// NewBundles reads the manifest in dir. A missing manifest is not an
// error; pages are then unknown until a reload finds one.
func NewBundles(dir string, flags FlagStore) (*Bundles, error) {
	b := &Bundles{dir: dir, manifest: map[string]string{}}
	b.guard = NewGuard(flags, "", b.Reload)
	if err := b.Reload(context.Background()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the manifest from disk
func (b *Bundles) Reload(_ context.Context) error {
	data, err := os.ReadFile(filepath.Join(b.dir, ManifestFile))
	if err != nil {
		return err
	}
	manifest := map[string]string{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	b.mu.Lock()
	b.manifest = manifest
	b.mu.Unlock()
	return nil
}

// Load returns the bundle of a page
func (b *Bundles) Load(ctx context.Context, page string) ([]byte, error) {
	return b.guard.Load(ctx, page, func(ctx context.Context) ([]byte, error) {
		path, err := b.path(page)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	})
}

// Guard exposes the reload guard
func (b *Bundles) Guard() *Guard {
	return b.guard
}

func (b *Bundles) path(page string) (string, error) {
	b.mu.RLock()
	rel, ok := b.manifest[page]
	b.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPage, page)
	}

	full := filepath.Join(b.dir, filepath.Clean("/"+rel))
	if !strings.HasPrefix(full, filepath.Clean(b.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("bundle path escapes static directory: %s", rel)
	}
	return full, nil
}
