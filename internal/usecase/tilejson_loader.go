package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/attribution"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/tilejson"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

type LoaderConfig struct {
	Scope      string
	TTL        time.Duration
	Timeout    time.Duration
	FirstParty config.FirstParty
}

// TileJSONLoader fetches and caches TileJSON documents. Concurrent loads of
// the same URL share one fetch and observe the same outcome. It never
// retries on its own.
type TileJSONLoader struct {
	transport transport.Transport
	cache     *cache.LayeredCache
	cfg       LoaderConfig
	group     singleflight.Group
	logger    logger.Logger
	now       func() time.Time
}

func NewTileJSONLoader(t transport.Transport, c *cache.LayeredCache, cfg LoaderConfig, l logger.Logger) *TileJSONLoader {
	return &TileJSONLoader{
		transport: t,
		cache:     c,
		cfg:       cfg,
		logger:    l,
		now:       time.Now,
	}
}

// Load returns the normalized fields of the document at configurationURL,
// serving a fresh cached copy without I/O when one exists.
func (l *TileJSONLoader) Load(ctx context.Context, configurationURL string) (domain.Resolution, error) {
	key := cache.TileJSONKey(l.cfg.Scope, configurationURL)

	if v, ok := l.cache.Get(ctx, key); ok && !v.Stale(l.now()) {
		doc, err := tilejson.Parse(v.Data)
		if err == nil {
			l.logger.Debug("tilejson cache hit", "url", configurationURL)
			return doc.Resolution(attribution.FromHTML), nil
		}
		l.logger.Warn("cached tilejson no longer parses, refetching", "url", configurationURL, "error", err)
	}

	// The shared fetch outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := l.group.DoChan(configurationURL, func() (any, error) {
		return l.fetch(context.WithoutCancel(ctx), configurationURL, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Resolution{}, res.Err
		}
		return res.Val.(domain.Resolution), nil
	case <-ctx.Done():
		return domain.Resolution{}, domain.NewError(domain.KindCancelled, "load tilejson", "", ctx.Err())
	}
}

func (l *TileJSONLoader) fetch(ctx context.Context, configurationURL string, key cache.TileCacheKey) (domain.Resolution, error) {
	const op = "load tilejson"

	ctx, span := telemetry.Tracer().Start(ctx, "tilejson.load")
	defer span.End()
	span.SetAttributes(attribute.String("tilejson.url", configurationURL))

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	fetchURL, err := l.normalize(configurationURL)
	if err != nil {
		return domain.Resolution{}, domain.NewError(domain.KindConfiguration, op, "", err)
	}

	start := time.Now()
	resp, err := l.transport.Fetch(ctx, fetchURL, nil)
	metrics.UpstreamLatency.WithLabelValues("tilejson").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("tilejson", "error").Inc()
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("tilejson fetch failed", "url", configurationURL, "error", err)
		return domain.Resolution{}, domain.NewError(domain.KindNetwork, op, "", err)
	}
	if !resp.Success() {
		metrics.UpstreamRequests.WithLabelValues("tilejson", "status").Inc()
		statusErr := &domain.StatusError{Status: resp.Status, URL: configurationURL}
		span.SetStatus(codes.Error, statusErr.Error())
		l.logger.Warn("tilejson upstream returned non-2xx", "url", configurationURL, "status", resp.Status)
		return domain.Resolution{}, domain.NewError(domain.KindNetwork, op, "", statusErr)
	}
	metrics.UpstreamRequests.WithLabelValues("tilejson", "ok").Inc()

	doc, err := tilejson.Parse(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("tilejson parse failed", "url", configurationURL, "error", err)
		return domain.Resolution{}, err
	}
	for _, w := range doc.Warnings {
		l.logger.Warn("tilejson warning", "url", configurationURL, "warning", w)
	}

	if !resp.Directives.NoStore {
		fetchedAt := l.now()
		expiresAt, ok := resp.Directives.ExpiresAt(fetchedAt)
		if !ok {
			expiresAt = fetchedAt.Add(l.cfg.TTL)
		}
		l.cache.Set(ctx, key, cache.TileCacheValue{Data: resp.Body, FetchedAt: fetchedAt, ExpiresAt: expiresAt})
	}

	l.logger.Info("tilejson loaded", "url", configurationURL, "tiles", len(doc.Tiles), "minzoom", doc.MinZoom, "maxzoom", doc.MaxZoom)
	return doc.Resolution(attribution.FromHTML), nil
}

// normalize turns mapbox://<mapid> into the hosted TileJSON endpoint.
func (l *TileJSONLoader) normalize(configurationURL string) (string, error) {
	if !strings.HasPrefix(configurationURL, domain.FirstPartyScheme+"://") {
		return configurationURL, nil
	}

	u, err := url.Parse(configurationURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidConfigURL, err)
	}
	mapID := u.Host + strings.TrimSuffix(u.Path, "/")
	if mapID == "" {
		return "", fmt.Errorf("%w: empty map identifier", domain.ErrInvalidConfigURL)
	}
	if l.cfg.FirstParty.APIURL == "" {
		return "", errors.New("first party api url is not configured")
	}

	out := fmt.Sprintf("%s/v4/%s.json?secure", strings.TrimSuffix(l.cfg.FirstParty.APIURL, "/"), mapID)
	if l.cfg.FirstParty.AccessToken != "" {
		out += "&access_token=" + url.QueryEscape(l.cfg.FirstParty.AccessToken)
	}
	return out, nil
}
