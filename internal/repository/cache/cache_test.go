package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tileKey(source string, z, x, y int) TileCacheKey {
	return TileKey("scope", source, domain.NewTileCoordinate(z, x, y))
}

func value(data string, fetchedAt time.Time, ttl time.Duration) TileCacheValue {
	return TileCacheValue{Data: []byte(data), FetchedAt: fetchedAt, ExpiresAt: fetchedAt.Add(ttl)}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "tile:scope:osm:3:1:2", tileKey("osm", 3, 1, 2).String())
	assert.Equal(t, "tilejson:scope:https://ex.com/a.json", TileJSONKey("scope", "https://ex.com/a.json").String())
}

func TestValueStale(t *testing.T) {
	now := time.Now()
	assert.False(t, value("a", now, time.Minute).Stale(now))
	assert.True(t, value("a", now, time.Minute).Stale(now.Add(time.Minute)))
	assert.False(t, TileCacheValue{FetchedAt: now}.Stale(now.Add(100*time.Hour)))
}

func TestMemoryCacheLRU(t *testing.T) {
	ctx := context.Background()
	var evicted []TileCacheKey
	c := NewMemoryCache(2, func(k TileCacheKey) { evicted = append(evicted, k) })
	now := time.Now()

	require.NoError(t, c.Set(ctx, tileKey("a", 0, 0, 0), value("1", now, time.Hour)))
	require.NoError(t, c.Set(ctx, tileKey("a", 1, 0, 0), value("2", now, time.Hour)))

	// Touch the oldest so the second becomes least recently used.
	_, ok, _ := c.Get(ctx, tileKey("a", 0, 0, 0))
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, tileKey("a", 1, 1, 0), value("3", now, time.Hour)))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []TileCacheKey{tileKey("a", 1, 0, 0)}, evicted)
	_, ok, _ = c.Get(ctx, tileKey("a", 1, 0, 0))
	assert.False(t, ok)
}

func TestMemoryCacheUpdateRefreshes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, nil)
	now := time.Now()

	require.NoError(t, c.Set(ctx, tileKey("a", 0, 0, 0), value("old", now, time.Hour)))
	require.NoError(t, c.Set(ctx, tileKey("a", 0, 0, 0), value("new", now, time.Hour)))

	v, ok, _ := c.Get(ctx, tileKey("a", 0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, "new", string(v.Data))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCachePinnedEntriesSurviveEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(1, nil)
	now := time.Now()
	pinned := tileKey("a", 0, 0, 0)

	c.Pin(pinned)
	require.NoError(t, c.Set(ctx, pinned, value("pinned", now, time.Hour)))
	require.NoError(t, c.Set(ctx, tileKey("a", 1, 0, 0), value("other", now, time.Hour)))

	_, ok, _ := c.Get(ctx, pinned)
	assert.True(t, ok, "pinned entry must not be evicted")
	assert.Equal(t, 2, c.Len())

	c.Unpin(pinned)
	assert.Equal(t, 1, c.Len(), "unpin trims back to capacity")
}

func TestMemoryCacheDeleteSource(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, nil)
	now := time.Now()

	require.NoError(t, c.Set(ctx, tileKey("a", 0, 0, 0), value("1", now, time.Hour)))
	require.NoError(t, c.Set(ctx, tileKey("b", 0, 0, 0), value("2", now, time.Hour)))
	require.NoError(t, c.Set(ctx, TileKey("other-scope", "a", domain.NewTileCoordinate(0, 0, 0)), value("3", now, time.Hour)))
	require.NoError(t, c.Set(ctx, TileJSONKey("scope", "https://ex.com/a.json"), value("{}", now, time.Hour)))

	require.NoError(t, c.DeleteSource(ctx, "scope", "a"))

	assert.Equal(t, 3, c.Len())
	_, ok, _ := c.Get(ctx, tileKey("a", 0, 0, 0))
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, TileKey("other-scope", "a", domain.NewTileCoordinate(0, 0, 0)))
	assert.True(t, ok, "other instance scope is untouched")
}

// durableContract runs the same checks against every durable backend.
func durableContract(t *testing.T, c TileCache) {
	t.Helper()
	ctx := context.Background()
	fetched := time.UnixMilli(time.Now().UnixMilli())

	_, ok, err := c.Get(ctx, tileKey("a", 3, 1, 2))
	require.NoError(t, err)
	assert.False(t, ok)

	v := value("\x89PNG payload", fetched, time.Hour)
	require.NoError(t, c.Set(ctx, tileKey("a", 3, 1, 2), v))
	require.NoError(t, c.Set(ctx, tileKey("b", 3, 1, 2), v))
	require.NoError(t, c.Set(ctx, TileJSONKey("scope", "https://ex.com/a.json"), TileCacheValue{Data: []byte(`{"tiles":[]}`), FetchedAt: fetched}))

	got, ok, err := c.Get(ctx, tileKey("a", 3, 1, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v.Data, got.Data)
	assert.True(t, v.FetchedAt.Equal(got.FetchedAt))
	assert.True(t, v.ExpiresAt.Equal(got.ExpiresAt))

	doc, ok, err := c.Get(ctx, TileJSONKey("scope", "https://ex.com/a.json"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, doc.ExpiresAt.IsZero())

	require.NoError(t, c.DeleteSource(ctx, "scope", "a"))

	_, ok, err = c.Get(ctx, tileKey("a", 3, 1, 2))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Get(ctx, tileKey("b", 3, 1, 2))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = c.Get(ctx, TileJSONKey("scope", "https://ex.com/a.json"))
	require.NoError(t, err)
	assert.True(t, ok, "tilejson documents are not source-scoped")
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "test.db"), logger.NewNoOp())
	require.NoError(t, err)
	defer c.Close()

	durableContract(t, c)
}

func TestSQLiteCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	fetched := time.UnixMilli(time.Now().UnixMilli())

	c, err := NewSQLiteCache(path, logger.NewNoOp())
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, tileKey("a", 1, 1, 1), value("tile", fetched, time.Minute)))
	require.NoError(t, c.Close())

	c, err = NewSQLiteCache(path, logger.NewNoOp())
	require.NoError(t, err)
	defer c.Close()

	got, ok, err := c.Get(ctx, tileKey("a", 1, 1, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Stale(fetched))
	assert.True(t, got.Stale(fetched.Add(time.Minute)))
}

func TestFilesystemCache(t *testing.T) {
	c, err := NewFilesystemCache(t.TempDir())
	require.NoError(t, err)

	durableContract(t, c)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	c, err := NewRedisCache(RedisConfig{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	durableContract(t, c)
}

type failingCache struct{ NoopCache }

func (failingCache) Get(context.Context, TileCacheKey) (TileCacheValue, bool, error) {
	return TileCacheValue{}, false, errors.New("disk on fire")
}

func (failingCache) Set(context.Context, TileCacheKey, TileCacheValue) error {
	return errors.New("disk on fire")
}

func TestLayeredCachePromotesDurableHits(t *testing.T) {
	ctx := context.Background()
	durable, err := NewFilesystemCache(t.TempDir())
	require.NoError(t, err)

	v := value("tile", time.Now(), time.Hour)
	require.NoError(t, durable.Set(ctx, tileKey("a", 0, 0, 0), v))

	c := NewLayeredCache(4, durable, "filesystem", logger.NewNoOp())
	assert.Equal(t, 0, c.Len())

	got, ok := c.Get(ctx, tileKey("a", 0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, v.Data, got.Data)
	assert.Equal(t, 1, c.Len())
}

func TestLayeredCacheDurableFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c := NewLayeredCache(4, &failingCache{}, "failing", logger.NewNoOp())

	_, ok := c.Get(ctx, tileKey("a", 0, 0, 0))
	assert.False(t, ok)

	c.Set(ctx, tileKey("a", 0, 0, 0), value("tile", time.Now(), time.Hour))
	_, ok = c.Get(ctx, tileKey("a", 0, 0, 0))
	assert.True(t, ok, "memory tier still serves")
}

func TestLayeredCacheInvalidateSource(t *testing.T) {
	ctx := context.Background()
	durable, err := NewFilesystemCache(t.TempDir())
	require.NoError(t, err)
	c := NewLayeredCache(4, durable, "filesystem", logger.NewNoOp())

	c.Set(ctx, tileKey("a", 0, 0, 0), value("tile", time.Now(), time.Hour))
	c.InvalidateSource(ctx, "scope", "a")

	_, ok := c.Get(ctx, tileKey("a", 0, 0, 0))
	assert.False(t, ok)
}

func TestNewFactory(t *testing.T) {
	l := logger.NewNoOp()

	c, err := New(config.Cache{Type: "memory", Capacity: 8}, config.Redis{}, l)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Backend())

	c, err = New(config.Cache{Type: "filesystem", Capacity: 8, Dir: t.TempDir()}, config.Redis{}, l)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", c.Backend())

	c, err = New(config.Cache{Type: "sqlite", Capacity: 8, SQLitePath: filepath.Join(t.TempDir(), "c.db")}, config.Redis{}, l)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Backend())
	require.NoError(t, c.Close())

	_, err = New(config.Cache{Type: "tape"}, config.Redis{}, l)
	assert.Error(t, err)
}
