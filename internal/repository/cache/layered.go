package cache

import (
	"context"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/metrics"
)

// LayeredCache serves from the in-memory LRU and falls back to a durable
// tier, promoting hits. Durable-tier failures are logged and treated as
// misses so they never surface to tile callers.
type LayeredCache struct {
	memory  *MemoryCache
	durable TileCache
	backend string
	logger  logger.Logger
}

func NewLayeredCache(capacity int, durable TileCache, backend string, l logger.Logger) *LayeredCache {
	if durable == nil {
		durable, backend = NewNoopCache(), "disabled"
	}
	return &LayeredCache{
		memory: NewMemoryCache(capacity, func(TileCacheKey) {
			metrics.CacheEvictions.Inc()
		}),
		durable: durable,
		backend: backend,
		logger:  l,
	}
}

func (c *LayeredCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool) {
	if v, ok, _ := c.memory.Get(ctx, k); ok {
		return v, true
	}

	start := time.Now()
	v, ok, err := c.durable.Get(ctx, k)
	metrics.StoreOperationDuration.WithLabelValues(c.backend, "get").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(c.backend, "get").Inc()
		c.logger.Warn("durable cache get failed", "backend", c.backend, "key", k.String(), "error", err)
		return TileCacheValue{}, false
	}
	if !ok {
		return TileCacheValue{}, false
	}

	_ = c.memory.Set(ctx, k, v)
	return v, true
}

func (c *LayeredCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) {
	_ = c.memory.Set(ctx, k, v)

	start := time.Now()
	err := c.durable.Set(ctx, k, v)
	metrics.StoreOperationDuration.WithLabelValues(c.backend, "set").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(c.backend, "set").Inc()
		c.logger.Warn("durable cache set failed", "backend", c.backend, "key", k.String(), "error", err)
	}
}

// InvalidateSource removes every tile of one source from both tiers.
func (c *LayeredCache) InvalidateSource(ctx context.Context, scope, sourceID string) {
	_ = c.memory.DeleteSource(ctx, scope, sourceID)

	if err := c.durable.DeleteSource(ctx, scope, sourceID); err != nil {
		metrics.StoreErrors.WithLabelValues(c.backend, "delete").Inc()
		c.logger.Warn("durable cache invalidation failed", "backend", c.backend, "source", sourceID, "error", err)
	}
}

func (c *LayeredCache) Pin(k TileCacheKey) {
	c.memory.Pin(k)
}

func (c *LayeredCache) Unpin(k TileCacheKey) {
	c.memory.Unpin(k)
}

func (c *LayeredCache) Len() int {
	return c.memory.Len()
}

func (c *LayeredCache) Backend() string {
	return c.backend
}

func (c *LayeredCache) Close() error {
	c.memory.Clear()
	return c.durable.Close()
}
