package cache

import "context"

// NoopCache is the durable tier when persistence is disabled.
type NoopCache struct{}

var _ TileCache = (*NoopCache)(nil)

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(context.Context, TileCacheKey) (TileCacheValue, bool, error) {
	return TileCacheValue{}, false, nil
}

func (c *NoopCache) Set(context.Context, TileCacheKey, TileCacheValue) error {
	return nil
}

func (c *NoopCache) DeleteSource(context.Context, string, string) error {
	return nil
}

func (c *NoopCache) Close() error {
	return nil
}
