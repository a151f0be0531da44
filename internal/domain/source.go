package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// FirstPartyScheme marks configuration URLs naming a hosted map identifier,
// e.g. mapbox://mapbox.satellite.
const FirstPartyScheme = "mapbox"

const (
	DefaultTileSize           = 512
	DefaultFirstPartyTileSize = 256
)

type OriginKind int

const (
	OriginExplicitTemplates OriginKind = iota
	OriginTileJSONReference
)

func (k OriginKind) String() string {
	switch k {
	case OriginExplicitTemplates:
		return "templates"
	case OriginTileJSONReference:
		return "tilejson"
	default:
		return fmt.Sprintf("OriginKind(%d)", int(k))
	}
}

// Origin is the two-case union a source was declared from. Templates is set
// for OriginExplicitTemplates, ConfigurationURL for OriginTileJSONReference.
type Origin struct {
	Kind             OriginKind
	Templates        []string
	ConfigurationURL string
}

// FirstParty reports whether the origin names a hosted map identifier.
func (o Origin) FirstParty() bool {
	return o.Kind == OriginTileJSONReference && strings.HasPrefix(o.ConfigurationURL, FirstPartyScheme+"://")
}

type ResolutionState int

const (
	StatePending ResolutionState = iota
	StateReady
	StateFailed
)

func (s ResolutionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ResolutionState(%d)", int(s))
	}
}

type Scheme string

const (
	SchemeXYZ Scheme = "xyz"
	SchemeTMS Scheme = "tms"
)

type AttributionInfo struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Options are the recognized inline source options. Nil pointers mean unset.
type Options struct {
	MinimumZoomLevel *int
	MaximumZoomLevel *int
	TileSize         *float64
	AttributionInfos []AttributionInfo
	// FetchTimeout overrides the global per-fetch timeout when positive.
	FetchTimeout time.Duration
}

// Resolution carries the normalized fields a TileJSON document contributes.
type Resolution struct {
	Tiles       []string
	MinZoom     int
	MaxZoom     int
	Scheme      Scheme
	Name        string
	Bounds      []float64
	Attribution []AttributionInfo
}

// SourceDescriptor is an immutable snapshot of a tile source. Transitions
// return a new value; the receiver is never modified.
type SourceDescriptor struct {
	Identifier       string
	Origin           Origin
	Options          Options
	TileURLTemplates []string
	MinZoom          int
	MaxZoom          int
	TileSize         float64
	Scheme           Scheme
	Name             string
	Bounds           []float64
	Attribution      []AttributionInfo
	State            ResolutionState
	Reason           error
}

// NewTemplateSource builds a Ready descriptor from explicit templates.
func NewTemplateSource(identifier string, templates []string, opts Options) (SourceDescriptor, error) {
	const op = "create source"

	if strings.TrimSpace(identifier) == "" {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, ErrInvalidIdentifier)
	}
	if len(templates) == 0 {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, fmt.Errorf("%w: no templates", ErrInvalidTemplate))
	}
	if err := ValidateTemplate(templates[0]); err != nil {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, err)
	}

	origin := Origin{Kind: OriginExplicitTemplates, Templates: cloneStrings(templates)}
	d, err := newDescriptor(op, identifier, origin, opts)
	if err != nil {
		return SourceDescriptor{}, err
	}

	d.TileURLTemplates = cloneStrings(templates)
	d.Attribution = cloneAttribution(opts.AttributionInfos)
	d.State = StateReady
	return d, nil
}

// NewTileJSONSource builds a Pending descriptor referencing a TileJSON
// document. It performs no I/O.
func NewTileJSONSource(identifier, configurationURL string, opts Options) (SourceDescriptor, error) {
	const op = "create source"

	if strings.TrimSpace(identifier) == "" {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, ErrInvalidIdentifier)
	}
	u, err := url.Parse(configurationURL)
	if err != nil {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, fmt.Errorf("%w: %w", ErrInvalidConfigURL, err))
	}
	switch u.Scheme {
	case "http", "https", FirstPartyScheme:
	default:
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfigURL, u.Scheme))
	}
	if u.Host == "" {
		return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, fmt.Errorf("%w: missing host", ErrInvalidConfigURL))
	}

	origin := Origin{Kind: OriginTileJSONReference, ConfigurationURL: configurationURL}
	d, err := newDescriptor(op, identifier, origin, opts)
	if err != nil {
		return SourceDescriptor{}, err
	}

	d.Attribution = cloneAttribution(opts.AttributionInfos)
	d.State = StatePending
	return d, nil
}

func newDescriptor(op, identifier string, origin Origin, opts Options) (SourceDescriptor, error) {
	tileSize := float64(DefaultTileSize)
	if origin.FirstParty() {
		tileSize = DefaultFirstPartyTileSize
	}
	if opts.TileSize != nil {
		v := *opts.TileSize
		if !(v > 0) || math.IsInf(v, 0) {
			return SourceDescriptor{}, NewError(KindConfiguration, op, identifier, fmt.Errorf("%w: %v", ErrInvalidTileSize, v))
		}
		tileSize = v
	}

	// The descriptor owns its options; later writes through the caller's
	// pointers must not reach it.
	opts = opts.clone()

	minZoom, maxZoom := applyZoomOptions(DefaultMinZoom, DefaultMaxZoom, opts)

	return SourceDescriptor{
		Identifier: identifier,
		Origin:     origin,
		Options:    opts,
		MinZoom:    minZoom,
		MaxZoom:    maxZoom,
		TileSize:   tileSize,
		Scheme:     SchemeXYZ,
	}, nil
}

// applyZoomOptions lets explicit options override base bounds, then clamps
// both into [DefaultMinZoom, DefaultMaxZoom] with min <= max.
func applyZoomOptions(minZoom, maxZoom int, opts Options) (int, int) {
	if opts.MinimumZoomLevel != nil {
		minZoom = *opts.MinimumZoomLevel
	}
	if opts.MaximumZoomLevel != nil {
		maxZoom = *opts.MaximumZoomLevel
	}
	minZoom = clampZoom(minZoom)
	maxZoom = clampZoom(maxZoom)
	if minZoom > maxZoom {
		minZoom = maxZoom
	}
	return minZoom, maxZoom
}

func clampZoom(z int) int {
	return max(DefaultMinZoom, min(DefaultMaxZoom, z))
}

// Ready applies a TileJSON resolution. Only Pending descriptors accept it.
func (d SourceDescriptor) Ready(r Resolution) (SourceDescriptor, error) {
	if d.State != StatePending {
		return d, NewError(KindResolution, "apply tilejson", d.Identifier, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, StateReady))
	}
	if len(r.Tiles) == 0 {
		return d, NewError(KindParse, "apply tilejson", d.Identifier, ErrMissingTiles)
	}
	if err := ValidateTemplate(r.Tiles[0]); err != nil {
		return d, NewError(KindParse, "apply tilejson", d.Identifier, err)
	}

	next := d.clone()
	next.TileURLTemplates = cloneStrings(r.Tiles)
	next.MinZoom, next.MaxZoom = applyZoomOptions(r.MinZoom, r.MaxZoom, d.Options)
	if r.Scheme != "" {
		next.Scheme = r.Scheme
	}
	next.Name = r.Name
	next.Bounds = append([]float64(nil), r.Bounds...)
	next.Attribution = append(cloneAttribution(d.Options.AttributionInfos), r.Attribution...)
	next.State = StateReady
	next.Reason = nil
	return next, nil
}

// Failed records a terminal failure. Ready descriptors never fail.
func (d SourceDescriptor) Failed(reason error) (SourceDescriptor, error) {
	if d.State != StatePending {
		return d, NewError(KindResolution, "fail source", d.Identifier, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, StateFailed))
	}
	next := d.clone()
	next.State = StateFailed
	next.Reason = reason
	return next, nil
}

// Pending restarts resolution of a Failed descriptor.
func (d SourceDescriptor) Pending() (SourceDescriptor, error) {
	if d.State != StateFailed {
		return d, NewError(KindResolution, "re-resolve source", d.Identifier, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, StatePending))
	}
	next := d.clone()
	next.State = StatePending
	next.Reason = nil
	return next, nil
}

func (d SourceDescriptor) clone() SourceDescriptor {
	c := d
	c.Origin.Templates = cloneStrings(d.Origin.Templates)
	c.TileURLTemplates = cloneStrings(d.TileURLTemplates)
	c.Bounds = append([]float64(nil), d.Bounds...)
	c.Attribution = cloneAttribution(d.Attribution)
	c.Options = d.Options.clone()
	return c
}

func (o Options) clone() Options {
	c := o
	c.MinimumZoomLevel = clonePtr(o.MinimumZoomLevel)
	c.MaximumZoomLevel = clonePtr(o.MaximumZoomLevel)
	c.TileSize = clonePtr(o.TileSize)
	c.AttributionInfos = cloneAttribution(o.AttributionInfos)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy safe to hand to another goroutine.
func (d SourceDescriptor) Clone() SourceDescriptor {
	return d.clone()
}

// ValidateTemplate rejects templates that cannot address a tile.
func ValidateTemplate(template string) error {
	t := strings.TrimSpace(template)
	if t == "" {
		return fmt.Errorf("%w: empty template", ErrInvalidTemplate)
	}
	if !strings.Contains(t, "{z}") && !strings.Contains(t, "{quadkey}") && !strings.Contains(t, "{bbox-epsg-3857}") {
		return fmt.Errorf("%w: %q has no {z}, {quadkey} or {bbox-epsg-3857} token", ErrInvalidTemplate, template)
	}
	if strings.Count(t, "{") != strings.Count(t, "}") {
		return fmt.Errorf("%w: %q has unbalanced braces", ErrInvalidTemplate, template)
	}
	return nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneAttribution(a []AttributionInfo) []AttributionInfo {
	if a == nil {
		return nil
	}
	return append([]AttributionInfo(nil), a...)
}
