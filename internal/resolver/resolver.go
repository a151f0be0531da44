// Package resolver maps a source descriptor and a tile coordinate to the URL
// that must be fetched, applying zoom clamping and overscale.
package resolver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	URL string
	// Requested is the coordinate the caller asked for.
	Requested domain.TileCoordinate
	// Coordinate is the tile actually fetched; it differs from Requested
	// only when overscaling.
	Coordinate domain.TileCoordinate
	// OverscaleFactor is 2^(requested zoom - max zoom), or 1.
	OverscaleFactor int
}

type Resolver struct {
	pixelRatio float64
}

// New returns a Resolver substituting {ratio} for the given device pixel
// ratio.
func New(pixelRatio float64) *Resolver {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	return &Resolver{pixelRatio: pixelRatio}
}

func (r *Resolver) Resolve(d domain.SourceDescriptor, c domain.TileCoordinate) (Resolved, error) {
	const op = "resolve tile url"

	switch d.State {
	case domain.StateReady:
	case domain.StateFailed:
		return Resolved{}, domain.NewError(domain.KindResolution, op, d.Identifier, fmt.Errorf("%w: %w", domain.ErrNotReady, d.Reason))
	default:
		return Resolved{}, domain.NewError(domain.KindResolution, op, d.Identifier, domain.ErrNotReady)
	}
	if len(d.TileURLTemplates) == 0 {
		return Resolved{}, domain.NewError(domain.KindResolution, op, d.Identifier, domain.ErrNotReady)
	}
	if !c.Valid() {
		return Resolved{}, domain.NewError(domain.KindResolution, op, d.Identifier, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, c))
	}
	if c.Zoom < d.MinZoom {
		return Resolved{}, domain.NewError(domain.KindResolution, op, d.Identifier, fmt.Errorf("%w: %d < %d", domain.ErrBelowMinZoom, c.Zoom, d.MinZoom))
	}

	fetch, factor := c, 1
	if c.Zoom > d.MaxZoom {
		fetch = c.Ancestor(d.MaxZoom)
		factor = 1 << uint(c.Zoom-d.MaxZoom)
	}

	return Resolved{
		URL:             r.Expand(d.TileURLTemplates[0], fetch, d.Scheme),
		Requested:       c,
		Coordinate:      fetch,
		OverscaleFactor: factor,
	}, nil
}

// Expand substitutes every recognized token of template for c.
func (r *Resolver) Expand(template string, c domain.TileCoordinate, scheme domain.Scheme) string {
	y := c.Y
	flipped := (1 << uint(c.Zoom)) - 1 - c.Y
	if scheme == domain.SchemeTMS {
		y = flipped
	}

	ratio := ""
	if r.pixelRatio >= 2 {
		ratio = "@2x"
	}

	replacer := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Zoom),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(y),
		"{-y}", strconv.Itoa(flipped),
		"{ratio}", ratio,
		"{prefix}", fmt.Sprintf("%x%x", c.X%16, c.Y%16),
		"{quadkey}", Quadkey(c),
		"{bbox-epsg-3857}", BBox3857(c),
	)
	return replacer.Replace(template)
}

// Quadkey returns the Bing-style quadkey of c, one base-4 digit per zoom.
func Quadkey(c domain.TileCoordinate) string {
	if c.Zoom == 0 {
		return ""
	}
	q := strconv.FormatUint(c.Tile().Quadkey(), 4)
	if pad := c.Zoom - len(q); pad > 0 {
		q = strings.Repeat("0", pad) + q
	}
	return q
}

// BBox3857 returns "minx,miny,maxx,maxy" of c in web mercator meters.
func BBox3857(c domain.TileCoordinate) string {
	b := c.Tile().Bound()
	lo := project.WGS84.ToMercator(b.Min)
	hi := project.WGS84.ToMercator(b.Max)
	return joinFloats(lo, hi)
}

func joinFloats(lo, hi orb.Point) string {
	parts := []float64{lo.X(), lo.Y(), hi.X(), hi.Y()}
	out := make([]string, len(parts))
	for i, v := range parts {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(out, ",")
}

// CoveringZoom returns the integer zoom whose tiles are fetched for a
// fractional camera zoom: always the nearest lower integer, clamped at 0.
func CoveringZoom(cameraZoom float64) int {
	return max(0, int(math.Floor(cameraZoom)))
}

// DisplaySize returns the on-screen size in points of one tile fetched at
// tileZoom when the camera sits at cameraZoom.
func DisplaySize(tileSize float64, cameraZoom float64, tileZoom int) float64 {
	return tileSize * math.Exp2(cameraZoom-float64(tileZoom))
}
