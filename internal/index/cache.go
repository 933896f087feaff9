package index

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pdfqa/internal/logging"
	"pdfqa/internal/metrics"
)

// IndexBuilder builds an index for one file.
type IndexBuilder interface {
	Build(ctx context.Context, path, apiKey string) (*Index, error)
}

// Cache holds built indexes keyed by file path for the life of the process.
// Concurrent misses on the same path share one build; failed builds are not kept.
type Cache struct {
	builder IndexBuilder
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	entries    map[string]*Index
	generation map[string]uint64
	purges     uint64
	group      singleflight.Group
}

func NewCache(builder IndexBuilder, logger *zap.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		builder:    builder,
		logger:     logging.OrNop(logger).Named("cache"),
		metrics:    m,
		entries:    make(map[string]*Index),
		generation: make(map[string]uint64),
	}
}

// Get returns the index for path, building it on first use. The API key is
// only consulted on a miss; a hit returns the index built with whatever key
// was supplied first.
func (c *Cache) Get(ctx context.Context, path, apiKey string) (*Index, error) {
	key := filepath.Clean(path)

	c.mu.RLock()
	ix, ok := c.entries[key]
	gen, purges := c.generation[key], c.purges
	c.mu.RUnlock()
	if ok {
		c.logger.Debug("cache hit", zap.String("path", key))
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return ix, nil
	}

	c.logger.Info("cache miss, building index", zap.String("path", key))
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	// The build outlives any single caller so that a cancelled request does
	// not fail the others waiting on it.
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		built, err := c.builder.Build(buildCtx, key, apiKey)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, purges, built)
		return built, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("index build failed", zap.String("path", key), zap.Error(res.Err))
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

func (c *Cache) store(key string, gen, purges uint64, ix *Index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[key] != gen || c.purges != purges {
		// Invalidated while building.
		return
	}
	c.entries[key] = ix
	c.setSize()
}

// Invalidate drops the index for path and reports whether one was cached.
func (c *Cache) Invalidate(ctx context.Context, path string) bool {
	key := filepath.Clean(path)
	c.mu.Lock()
	ix, ok := c.entries[key]
	delete(c.entries, key)
	c.generation[key]++
	c.setSize()
	c.mu.Unlock()
	c.group.Forget(key)

	if ok {
		c.release(ctx, ix)
	}
	return ok
}

// Purge drops every cached index.
func (c *Cache) Purge(ctx context.Context) {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*Index)
	c.purges++
	for key := range old {
		c.group.Forget(key)
	}
	c.setSize()
	c.mu.Unlock()

	for _, ix := range old {
		c.release(ctx, ix)
	}
}

// Len returns the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) release(ctx context.Context, ix *Index) {
	if err := ix.Close(ctx); err != nil {
		c.logger.Warn("releasing index storage", zap.String("path", ix.Path()), zap.Error(err))
	}
}

// setSize must be called with mu held.
func (c *Cache) setSize() {
	if c.metrics != nil {
		c.metrics.CacheSize.Set(float64(len(c.entries)))
	}
}
