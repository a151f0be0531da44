package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
)

type EntryKind string

const (
	KindTile     EntryKind = "tile"
	KindTileJSON EntryKind = "tilejson"
)

// TileCacheKey addresses a tile by (scope, source, z, x, y) or a TileJSON
// document by (scope, url). Scope namespaces one map instance.
type TileCacheKey struct {
	Kind     EntryKind
	Scope    string
	SourceID string
	Z        int
	X        int
	Y        int
	URL      string
}

func TileKey(scope, sourceID string, c domain.TileCoordinate) TileCacheKey {
	return TileCacheKey{Kind: KindTile, Scope: scope, SourceID: sourceID, Z: c.Zoom, X: c.X, Y: c.Y}
}

func TileJSONKey(scope, url string) TileCacheKey {
	return TileCacheKey{Kind: KindTileJSON, Scope: scope, URL: url}
}

func (k TileCacheKey) String() string {
	if k.Kind == KindTileJSON {
		return fmt.Sprintf("tilejson:%s:%s", k.Scope, k.URL)
	}
	return fmt.Sprintf("tile:%s:%s:%d:%d:%d", k.Scope, k.SourceID, k.Z, k.X, k.Y)
}

type TileCacheValue struct {
	Data      []byte
	FetchedAt time.Time
	// ExpiresAt is zero when the entry never goes stale.
	ExpiresAt time.Time
}

func (v TileCacheValue) Stale(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}

// TileCache is a durable tier. Implementations must be safe for concurrent
// use.
type TileCache interface {
	Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error)
	Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error
	// DeleteSource drops every tile entry of one source in one scope.
	DeleteSource(ctx context.Context, scope, sourceID string) error
	Close() error
}
