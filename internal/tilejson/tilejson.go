// Package tilejson parses TileJSON documents into the fields a raster source
// needs. Parsing is pure: no I/O, no logging. Recoverable problems are
// returned as warnings on the Document.
package tilejson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
)

const (
	MinZoomLimit = 0
	MaxZoomLimit = 22
)

type Document struct {
	TileJSON    string
	Name        string
	Description string
	Version     string
	Scheme      domain.Scheme
	Tiles       []string
	MinZoom     int
	MaxZoom     int
	Bounds      []float64
	Center      []float64
	// Attribution holds trimmed, non-empty entries. Entries may be HTML.
	Attribution []string
	Warnings    []string
}

// Parse validates data as a TileJSON document. A missing or empty tiles
// array fails with domain.ErrMissingTiles; bad zoom bounds are clamped and
// malformed attribution entries dropped, both recorded as warnings.
func Parse(data []byte) (*Document, error) {
	const op = "parse tilejson"

	// Fields are decoded one at a time so a bad optional field never sinks
	// the whole document. Unknown fields are ignored.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, domain.NewError(domain.KindParse, op, "", fmt.Errorf("invalid json: %w", err))
	}

	doc := &Document{}
	doc.TileJSON = parseString(fields["tilejson"], "tilejson", doc)
	doc.Name = strings.TrimSpace(parseString(fields["name"], "name", doc))
	doc.Description = parseString(fields["description"], "description", doc)
	doc.Version = parseString(fields["version"], "version", doc)

	doc.Tiles = parseTiles(fields["tiles"], doc)
	if len(doc.Tiles) == 0 {
		return nil, domain.NewError(domain.KindParse, op, "", domain.ErrMissingTiles)
	}

	doc.Scheme = parseScheme(parseString(fields["scheme"], "scheme", doc), doc)
	doc.MinZoom, doc.MaxZoom = parseZoom(
		parseNumber(fields["minzoom"], "minzoom", doc),
		parseNumber(fields["maxzoom"], "maxzoom", doc),
		doc,
	)
	doc.Bounds = parseFloats(fields["bounds"], 4, "bounds", doc)
	doc.Center = parseFloats(fields["center"], 3, "center", doc)
	doc.Attribution = parseAttribution(fields["attribution"], doc)

	return doc, nil
}

// Resolution converts the document into the fields applied to a descriptor.
// Attribution entries are converted by conv, normally attribution.FromHTML.
func (d *Document) Resolution(conv func(string) []domain.AttributionInfo) domain.Resolution {
	var attr []domain.AttributionInfo
	for _, a := range d.Attribution {
		attr = append(attr, conv(a)...)
	}
	return domain.Resolution{
		Tiles:       append([]string(nil), d.Tiles...),
		MinZoom:     d.MinZoom,
		MaxZoom:     d.MaxZoom,
		Scheme:      d.Scheme,
		Name:        d.Name,
		Bounds:      append([]float64(nil), d.Bounds...),
		Attribution: attr,
	}
}

func (d *Document) warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

func parseString(raw json.RawMessage, field string, doc *Document) string {
	if isNull(raw) {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		doc.warn("%s ignored: not a string", field)
		return ""
	}
	return v
}

func parseNumber(raw json.RawMessage, field string, doc *Document) *float64 {
	if isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		doc.warn("%s ignored: not a number", field)
		return nil
	}
	return &v
}

func parseTiles(raw json.RawMessage, doc *Document) []string {
	if isNull(raw) {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		doc.warn("tiles is not an array: %v", err)
		return nil
	}

	tiles := make([]string, 0, len(entries))
	for i, e := range entries {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			doc.warn("tiles[%d] dropped: not a string", i)
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			doc.warn("tiles[%d] dropped: empty", i)
			continue
		}
		tiles = append(tiles, s)
	}
	return tiles
}

func parseScheme(s string, doc *Document) domain.Scheme {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(domain.SchemeXYZ):
		return domain.SchemeXYZ
	case string(domain.SchemeTMS):
		return domain.SchemeTMS
	default:
		doc.warn("unknown scheme %q, using xyz", s)
		return domain.SchemeXYZ
	}
}

func parseZoom(rawMin, rawMax *float64, doc *Document) (int, int) {
	minZoom, maxZoom := MinZoomLimit, MaxZoomLimit
	if rawMin != nil {
		minZoom = int(math.Floor(*rawMin))
	}
	if rawMax != nil {
		maxZoom = int(math.Floor(*rawMax))
	}

	if minZoom < MinZoomLimit || minZoom > MaxZoomLimit {
		doc.warn("minzoom %d clamped into [%d, %d]", minZoom, MinZoomLimit, MaxZoomLimit)
		minZoom = max(MinZoomLimit, min(MaxZoomLimit, minZoom))
	}
	if maxZoom < MinZoomLimit || maxZoom > MaxZoomLimit {
		doc.warn("maxzoom %d clamped into [%d, %d]", maxZoom, MinZoomLimit, MaxZoomLimit)
		maxZoom = max(MinZoomLimit, min(MaxZoomLimit, maxZoom))
	}
	if minZoom > maxZoom {
		doc.warn("minzoom %d above maxzoom %d, clamped", minZoom, maxZoom)
		minZoom = maxZoom
	}
	return minZoom, maxZoom
}

func parseFloats(raw json.RawMessage, n int, field string, doc *Document) []float64 {
	if isNull(raw) {
		return nil
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil || len(v) != n {
		doc.warn("%s ignored: want %d numbers", field, n)
		return nil
	}
	return v
}

// parseAttribution accepts a single string or an array of strings.
func parseAttribution(raw json.RawMessage, doc *Document) []string {
	if isNull(raw) {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if s := strings.TrimSpace(single); s != "" {
			return []string{s}
		}
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		doc.warn("attribution dropped: not a string or array")
		return nil
	}

	var out []string
	for i, e := range entries {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			doc.warn("attribution[%d] dropped: not a string", i)
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
