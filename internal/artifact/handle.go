package artifact

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Handle loads an artifact directory on first use and keeps it for the
// lifetime of the process. A successful load is never repeated; a failed one
// is retried on the next call so a server can start before training has run.
type Handle struct {
	dir string

	mu  sync.Mutex
	art *Artifact
}

// NewHandle returns an unloaded handle for dir.
func NewHandle(dir string) *Handle {
	return &Handle{dir: dir}
}

// NewLoadedHandle wraps an artifact that is already in memory.
func NewLoadedHandle(dir string, a *Artifact) *Handle {
	return &Handle{dir: dir, art: a}
}

// Dir returns the artifact directory.
func (h *Handle) Dir() string {
	return h.dir
}

// Get returns the artifact, loading it if needed.
func (h *Handle) Get() (*Artifact, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.art != nil {
		return h.art, nil
	}
	a, err := Load(h.dir)
	if err != nil {
		return nil, err
	}
	h.art = a
	return a, nil
}

// Loaded reports whether the artifact is in memory.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.art != nil
}

// Cache keeps handles for recently used artifact directories.
type Cache struct {
	handles *lru.Cache[string, *Handle]
	mu      sync.Mutex
}

// NewCache creates a cache holding up to size artifacts.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, *Handle](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}
	return &Cache{handles: c}, nil
}

// Handle returns the shared handle for dir.
func (c *Cache) Handle(dir string) *Handle {
	key := filepath.Clean(dir)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles.Get(key); ok {
		return h
	}
	h := NewHandle(dir)
	c.handles.Add(key, h)
	return h
}

// Get loads (or reuses) the artifact in dir.
func (c *Cache) Get(dir string) (*Artifact, error) {
	return c.Handle(dir).Get()
}
