package tilejson

import (
	"testing"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const satelliteDoc = `{
	"tilejson": "2.2.0",
	"name": " Satellite ",
	"scheme": "xyz",
	"tiles": ["https://a.ex.com/v4/sat/{z}/{x}/{y}.png", "https://b.ex.com/v4/sat/{z}/{x}/{y}.png"],
	"minzoom": 0,
	"maxzoom": 19,
	"bounds": [-180, -85.0511, 180, 85.0511],
	"center": [0, 0, 2],
	"attribution": "<a href=\"https://www.mapbox.com/about/maps/\">© Mapbox</a>",
	"vector_layers": [{"id": "ignored"}]
}`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(satelliteDoc))
	require.NoError(t, err)

	assert.Equal(t, "2.2.0", doc.TileJSON)
	assert.Equal(t, "Satellite", doc.Name)
	assert.Equal(t, domain.SchemeXYZ, doc.Scheme)
	assert.Len(t, doc.Tiles, 2)
	assert.Equal(t, 0, doc.MinZoom)
	assert.Equal(t, 19, doc.MaxZoom)
	assert.Len(t, doc.Bounds, 4)
	assert.Len(t, doc.Center, 3)
	assert.Equal(t, []string{`<a href="https://www.mapbox.com/about/maps/">© Mapbox</a>`}, doc.Attribution)
	assert.Empty(t, doc.Warnings)
}

func TestParseMissingTiles(t *testing.T) {
	for name, body := range map[string]string{
		"empty array":  `{"tiles": []}`,
		"absent":       `{"name": "x"}`,
		"only blanks":  `{"tiles": ["  ", 3]}`,
		"not an array": `{"tiles": "https://ex.com/{z}/{x}/{y}.png"}`,
		"null doc":     `null`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMissingTiles)
			assert.ErrorIs(t, err, domain.ErrParse)
		})
	}
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"tiles": [`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.NotErrorIs(t, err, domain.ErrMissingTiles)
}

func TestParseClampsZoom(t *testing.T) {
	doc, err := Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "minzoom": -2, "maxzoom": 30}`))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.MinZoom)
	assert.Equal(t, 22, doc.MaxZoom)
	assert.Len(t, doc.Warnings, 2)

	doc, err = Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "minzoom": 12, "maxzoom": 5}`))
	require.NoError(t, err)
	assert.Equal(t, 5, doc.MinZoom)
	assert.Equal(t, 5, doc.MaxZoom)
	assert.Len(t, doc.Warnings, 1)

	doc, err = Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "minzoom": "3"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.MinZoom)
	assert.Equal(t, 22, doc.MaxZoom)
	assert.Len(t, doc.Warnings, 1)
}

func TestParseAttribution(t *testing.T) {
	doc, err := Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "attribution": ["  © A  ", 5, "", "© B"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"© A", "© B"}, doc.Attribution)
	assert.Len(t, doc.Warnings, 1)

	doc, err = Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "attribution": {"text": "x"}}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Attribution)
	assert.Len(t, doc.Warnings, 1)
}

func TestParseSchemeAndName(t *testing.T) {
	doc, err := Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "scheme": "TMS", "name": 42}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeTMS, doc.Scheme)
	assert.Equal(t, "", doc.Name)

	doc, err = Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "scheme": "wmts"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemeXYZ, doc.Scheme)
}

func TestDocumentResolution(t *testing.T) {
	doc, err := Parse([]byte(`{"tiles": ["https://ex.com/{z}/{x}/{y}.png"], "maxzoom": 14, "attribution": ["© A", "© B"]}`))
	require.NoError(t, err)

	r := doc.Resolution(func(s string) []domain.AttributionInfo {
		return []domain.AttributionInfo{{Title: s}}
	})
	assert.Equal(t, []string{"https://ex.com/{z}/{x}/{y}.png"}, r.Tiles)
	assert.Equal(t, 14, r.MaxZoom)
	assert.Equal(t, []domain.AttributionInfo{{Title: "© A"}, {Title: "© B"}}, r.Attribution)
}
