package attribution

import (
	"testing"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFromHTML(t *testing.T) {
	got := FromHTML(`<a href="https://www.mapbox.com/about/maps/" target="_blank">© Mapbox</a> <a href="https://www.openstreetmap.org/about/">© OpenStreetMap</a> <a class="mapbox-improve-map" href="https://www.mapbox.com/map-feedback/">Improve this map</a>`)

	assert.Equal(t, []domain.AttributionInfo{
		{Title: "© Mapbox", URL: "https://www.mapbox.com/about/maps/"},
		{Title: "© OpenStreetMap", URL: "https://www.openstreetmap.org/about/"},
	}, got)
}

func TestFromHTMLPlainText(t *testing.T) {
	assert.Equal(t, []domain.AttributionInfo{{Title: "© OpenStreetMap contributors"}}, FromHTML("  © OpenStreetMap   contributors "))
	assert.Nil(t, FromHTML("   "))
}

func TestFromHTMLMixed(t *testing.T) {
	got := FromHTML(`Imagery © Esri | <a href="https://ex.com">Example</a> &amp; `)

	assert.Equal(t, []domain.AttributionInfo{
		{Title: "Imagery © Esri |"},
		{Title: "Example", URL: "https://ex.com"},
	}, got)
}

func TestRegistryOrderAndReplace(t *testing.T) {
	r := NewRegistry()
	r.Set("a", []domain.AttributionInfo{{Title: "inline A"}, {Title: "doc A"}})
	r.Set("b", []domain.AttributionInfo{{Title: "doc A"}})

	assert.Equal(t, []domain.AttributionInfo{{Title: "inline A"}, {Title: "doc A"}, {Title: "doc A"}}, r.All())

	r.Set("a", []domain.AttributionInfo{{Title: "replaced"}})
	assert.Equal(t, []domain.AttributionInfo{{Title: "replaced"}, {Title: "doc A"}}, r.All())

	r.Remove("a")
	_, ok := r.Source("a")
	assert.False(t, ok)
	assert.Equal(t, []domain.AttributionInfo{{Title: "doc A"}}, r.All())
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry()
	in := []domain.AttributionInfo{{Title: "x"}}
	r.Set("a", in)
	in[0].Title = "mutated"

	got, ok := r.Source("a")
	assert.True(t, ok)
	got[0].Title = "mutated again"

	again, _ := r.Source("a")
	assert.Equal(t, "x", again[0].Title)
}

func TestDeduplicate(t *testing.T) {
	in := []domain.AttributionInfo{{Title: "a"}, {Title: "b", URL: "u"}, {Title: "a"}, {Title: "b"}}
	assert.Equal(t, []domain.AttributionInfo{{Title: "a"}, {Title: "b", URL: "u"}, {Title: "b"}}, Deduplicate(in))
}
