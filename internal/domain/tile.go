package domain

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

const (
	// DefaultMinZoom and DefaultMaxZoom bound every source unless options or
	// a TileJSON document narrow them.
	DefaultMinZoom = 0
	DefaultMaxZoom = 22

	// MaxRequestZoom is the deepest zoom a caller may request. Anything past
	// the source maximum is served by overscaling.
	MaxRequestZoom = 30
)

type TileCoordinate struct {
	Zoom int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

func NewTileCoordinate(z, x, y int) TileCoordinate {
	return TileCoordinate{Zoom: z, X: x, Y: y}
}

// Valid reports whether 0 <= x,y < 2^zoom.
func (c TileCoordinate) Valid() bool {
	if c.Zoom < 0 || c.Zoom > MaxRequestZoom {
		return false
	}
	n := 1 << uint(c.Zoom)
	return c.X >= 0 && c.Y >= 0 && c.X < n && c.Y < n
}

// Ancestor returns the tile at zoom that covers c. zoom must not exceed
// c.Zoom.
func (c TileCoordinate) Ancestor(zoom int) TileCoordinate {
	k := uint(c.Zoom - zoom)
	return TileCoordinate{Zoom: zoom, X: c.X >> k, Y: c.Y >> k}
}

func (c TileCoordinate) Tile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Zoom))
}

func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

func FromTile(t maptile.Tile) TileCoordinate {
	return TileCoordinate{Zoom: int(t.Z), X: int(t.X), Y: int(t.Y)}
}
