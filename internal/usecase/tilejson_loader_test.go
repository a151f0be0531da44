package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(ft *fakeTransport) *TileJSONLoader {
	c := cache.NewLayeredCache(16, nil, "", logger.NewNoOp())
	return NewTileJSONLoader(ft, c, LoaderConfig{
		Scope:   "test",
		TTL:     time.Hour,
		Timeout: time.Second,
		FirstParty: config.FirstParty{
			APIURL:      "https://api.example.com/",
			AccessToken: "a b",
		},
	}, logger.NewNoOp())
}

func TestLoaderServesFreshCopyFromCache(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(configURL, http.StatusOK, validTileJSON)
	l := newTestLoader(ft)

	for i := 0; i < 3; i++ {
		res, err := l.Load(context.Background(), configURL)
		require.NoError(t, err)
		assert.Equal(t, []string{tileURL}, res.Tiles)
	}
	assert.Equal(t, 1, ft.count(configURL))
}

func TestLoaderRefetchesAfterExpiry(t *testing.T) {
	ft := newFakeTransport()
	ft.respondWith(configURL, &transport.Response{
		Status:     http.StatusOK,
		Body:       []byte(validTileJSON),
		Directives: transport.CacheDirectives{MaxAge: time.Minute, HasMaxAge: true},
	})
	l := newTestLoader(ft)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err := l.Load(context.Background(), configURL)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Load(context.Background(), configURL)
	require.NoError(t, err)
	assert.Equal(t, 2, ft.count(configURL))
}

func TestLoaderNoStore(t *testing.T) {
	ft := newFakeTransport()
	ft.respondWith(configURL, &transport.Response{
		Status:     http.StatusOK,
		Body:       []byte(validTileJSON),
		Directives: transport.CacheDirectives{NoStore: true},
	})
	l := newTestLoader(ft)

	for i := 0; i < 2; i++ {
		_, err := l.Load(context.Background(), configURL)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ft.count(configURL))
}

func TestLoaderTransportError(t *testing.T) {
	ft := newFakeTransport()
	ft.fail(configURL, context.DeadlineExceeded)
	l := newTestLoader(ft)

	_, err := l.Load(context.Background(), configURL)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoaderParseError(t *testing.T) {
	ft := newFakeTransport()
	ft.respond(configURL, http.StatusOK, "<html>")
	l := newTestLoader(ft)

	_, err := l.Load(context.Background(), configURL)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestLoaderNormalize(t *testing.T) {
	l := newTestLoader(newFakeTransport())

	got, err := l.normalize("https://example.com/a.json")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.json", got)

	got, err = l.normalize("mapbox://mapbox.streets")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v4/mapbox.streets.json?secure&access_token=a+b", got)

	_, err = l.normalize("mapbox://")
	assert.ErrorIs(t, err, domain.ErrInvalidConfigURL)
}
