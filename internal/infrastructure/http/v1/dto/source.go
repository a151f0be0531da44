package dto

import (
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
)

type Attribution struct {
	Title string `json:"title" validate:"required"`
	URL   string `json:"url,omitempty" validate:"omitempty,url"`
}

// CreateSourceRequest registers a source from either explicit tile URL
// templates or a TileJSON configuration URL, never both.
type CreateSourceRequest struct {
	ID             string        `json:"id" validate:"required,max=128"`
	Tiles          []string      `json:"tiles" validate:"required_without=URL,excluded_with=URL,dive,required"`
	URL            string        `json:"url" validate:"required_without=Tiles"`
	MinZoom        *int          `json:"minzoom" validate:"omitempty,min=0,max=22"`
	MaxZoom        *int          `json:"maxzoom" validate:"omitempty,min=0,max=22"`
	TileSize       *float64      `json:"tileSize" validate:"omitempty,gt=0"`
	Attribution    []Attribution `json:"attribution" validate:"dive"`
	FetchTimeoutMs int           `json:"fetch_timeout_ms" validate:"min=0"`
}

func (r CreateSourceRequest) Origin() domain.Origin {
	if r.URL != "" {
		return domain.Origin{Kind: domain.OriginTileJSONReference, ConfigurationURL: r.URL}
	}
	return domain.Origin{Kind: domain.OriginExplicitTemplates, Templates: r.Tiles}
}

func (r CreateSourceRequest) Options() domain.Options {
	opts := domain.Options{
		MinimumZoomLevel: r.MinZoom,
		MaximumZoomLevel: r.MaxZoom,
		TileSize:         r.TileSize,
		FetchTimeout:     time.Duration(r.FetchTimeoutMs) * time.Millisecond,
	}
	for _, a := range r.Attribution {
		opts.AttributionInfos = append(opts.AttributionInfos, domain.AttributionInfo{Title: a.Title, URL: a.URL})
	}
	return opts
}

type SourceResponse struct {
	ID          string                   `json:"id"`
	Origin      string                   `json:"origin"`
	URL         string                   `json:"url,omitempty"`
	State       string                   `json:"state"`
	Reason      string                   `json:"reason,omitempty"`
	Tiles       []string                 `json:"tiles"`
	MinZoom     int                      `json:"minzoom"`
	MaxZoom     int                      `json:"maxzoom"`
	TileSize    float64                  `json:"tileSize"`
	Scheme      string                   `json:"scheme"`
	Name        string                   `json:"name,omitempty"`
	Bounds      []float64                `json:"bounds,omitempty"`
	Attribution []domain.AttributionInfo `json:"attribution"`
}

func NewSourceResponse(d domain.SourceDescriptor) SourceResponse {
	resp := SourceResponse{
		ID:          d.Identifier,
		Origin:      d.Origin.Kind.String(),
		URL:         d.Origin.ConfigurationURL,
		State:       d.State.String(),
		Tiles:       d.TileURLTemplates,
		MinZoom:     d.MinZoom,
		MaxZoom:     d.MaxZoom,
		TileSize:    d.TileSize,
		Scheme:      string(d.Scheme),
		Name:        d.Name,
		Bounds:      d.Bounds,
		Attribution: d.Attribution,
	}
	if resp.Tiles == nil {
		resp.Tiles = []string{}
	}
	if resp.Attribution == nil {
		resp.Attribution = []domain.AttributionInfo{}
	}
	if d.Reason != nil {
		resp.Reason = d.Reason.Error()
	}
	return resp
}

type AttributionResponse struct {
	Attribution []domain.AttributionInfo `json:"attribution"`
}
