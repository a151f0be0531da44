package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/resolver"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TileResult is what a tile request settles with.
type TileResult struct {
	SourceID        string
	Requested       domain.TileCoordinate
	Coordinate      domain.TileCoordinate
	OverscaleFactor int
	TileSize        float64
	Data            []byte
	FetchedAt       time.Time
	ExpiresAt       time.Time
	// Stale is set when Data came from an expired cache entry; a background
	// revalidation has been started.
	Stale bool
}

type SchedulerConfig struct {
	Scope      string
	DefaultTTL time.Duration
	Timeout    time.Duration
}

// inFlightRequest is one outstanding upstream fetch. Every waiter attached
// to it observes the same outcome.
type inFlightRequest struct {
	key       cache.TileCacheKey
	sourceID  string
	sourceCtx context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// mu orders settlement against cancellation.
	mu        sync.Mutex
	settled   bool
	cancelled bool
	value     cache.TileCacheValue
	err       error
}

// FetchScheduler deduplicates concurrent tile fetches, serves the cache and
// enforces per-source cancellation.
type FetchScheduler struct {
	transport transport.Transport
	cache     *cache.LayeredCache
	cfg       SchedulerConfig
	logger    logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[cache.TileCacheKey]*inFlightRequest
}

func NewFetchScheduler(t transport.Transport, c *cache.LayeredCache, cfg SchedulerConfig, l logger.Logger) *FetchScheduler {
	return &FetchScheduler{
		transport: t,
		cache:     c,
		cfg:       cfg,
		logger:    l,
		now:       time.Now,
		inflight:  make(map[cache.TileCacheKey]*inFlightRequest),
	}
}

// GetTile returns the tile described by r. A fresh cache entry is returned
// without I/O; a stale one is returned immediately while a revalidation runs
// in the background; a miss attaches to the in-flight fetch for the same
// tile or starts one. sourceCtx bounds the fetch itself, ctx only bounds how
// long this caller waits.
func (s *FetchScheduler) GetTile(ctx, sourceCtx context.Context, d domain.SourceDescriptor, r resolver.Resolved) (*TileResult, error) {
	key := cache.TileKey(s.cfg.Scope, d.Identifier, r.Coordinate)

	if v, ok := s.cache.Get(ctx, key); ok {
		if !v.Stale(s.now()) {
			metrics.CacheLookups.WithLabelValues("fresh").Inc()
			return s.result(d, r, v, false), nil
		}
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		s.revalidate(sourceCtx, d, r, key)
		return s.result(d, r, v, true), nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	req, joined := s.attach(sourceCtx, d, r, key)
	if joined {
		metrics.InFlightJoins.Inc()
		s.logger.Debug("joined in-flight tile fetch", "source", d.Identifier, "tile", r.Coordinate.String())
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindCancelled, "get tile", d.Identifier, ctx.Err())
	}

	if req.err != nil {
		return nil, req.err
	}
	return s.result(d, r, req.value, false), nil
}

// result hands each caller its own copy of the payload; the cached bytes
// and those shared by waiters are never exposed.
func (s *FetchScheduler) result(d domain.SourceDescriptor, r resolver.Resolved, v cache.TileCacheValue, stale bool) *TileResult {
	return &TileResult{
		SourceID:        d.Identifier,
		Requested:       r.Requested,
		Coordinate:      r.Coordinate,
		OverscaleFactor: r.OverscaleFactor,
		TileSize:        d.TileSize,
		Data:            bytes.Clone(v.Data),
		FetchedAt:       v.FetchedAt,
		ExpiresAt:       v.ExpiresAt,
		Stale:           stale,
	}
}

// attach returns the in-flight request for key, starting one when none
// exists. joined reports whether an existing request was reused.
func (s *FetchScheduler) attach(sourceCtx context.Context, d domain.SourceDescriptor, r resolver.Resolved, key cache.TileCacheKey) (*inFlightRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req, ok := s.inflight[key]; ok {
		return req, true
	}

	timeout := s.cfg.Timeout
	if d.Options.FetchTimeout > 0 {
		timeout = d.Options.FetchTimeout
	}
	fetchCtx, cancel := context.WithCancel(sourceCtx)
	req := &inFlightRequest{
		key:       key,
		sourceID:  d.Identifier,
		sourceCtx: sourceCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.inflight[key] = req
	s.cache.Pin(key)

	go s.run(fetchCtx, req, r, timeout)
	return req, false
}

func (s *FetchScheduler) revalidate(sourceCtx context.Context, d domain.SourceDescriptor, r resolver.Resolved, key cache.TileCacheKey) {
	if _, joined := s.attach(sourceCtx, d, r, key); !joined {
		s.logger.Debug("revalidating stale tile", "source", d.Identifier, "tile", r.Coordinate.String())
	}
}

func (s *FetchScheduler) run(ctx context.Context, req *inFlightRequest, r resolver.Resolved, timeout time.Duration) {
	defer req.cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "tile.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tile.source", req.sourceID),
		attribute.String("tile.coordinate", r.Coordinate.String()),
		attribute.Int("tile.overscale_factor", r.OverscaleFactor),
	)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.transport.Fetch(ctx, r.URL, nil)
	metrics.UpstreamLatency.WithLabelValues("tile").Observe(time.Since(start).Seconds())

	value, store, err := s.validate(req, r, resp, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	s.settle(req, value, store, err)
}

// validate turns a transport outcome into a cache value. store is false when
// the upstream forbade caching.
func (s *FetchScheduler) validate(req *inFlightRequest, r resolver.Resolved, resp *transport.Response, err error) (cache.TileCacheValue, bool, error) {
	const op = "fetch tile"

	if err != nil {
		if req.sourceCtx.Err() != nil {
			metrics.UpstreamRequests.WithLabelValues("tile", "cancelled").Inc()
			return cache.TileCacheValue{}, false, domain.NewError(domain.KindCancelled, op, req.sourceID, err)
		}
		metrics.UpstreamRequests.WithLabelValues("tile", "error").Inc()
		s.logger.Warn("tile fetch failed", "source", req.sourceID, "tile", r.Coordinate.String(), "error", err)
		return cache.TileCacheValue{}, false, domain.NewError(domain.KindNetwork, op, req.sourceID, err)
	}
	if !resp.Success() {
		metrics.UpstreamRequests.WithLabelValues("tile", "status").Inc()
		s.logger.Warn("tile upstream returned non-2xx", "source", req.sourceID, "tile", r.Coordinate.String(), "status", resp.Status)
		return cache.TileCacheValue{}, false, domain.NewError(domain.KindNetwork, op, req.sourceID, &domain.StatusError{Status: resp.Status, URL: r.URL})
	}
	if len(resp.Body) == 0 {
		metrics.UpstreamRequests.WithLabelValues("tile", "empty").Inc()
		return cache.TileCacheValue{}, false, domain.NewError(domain.KindNetwork, op, req.sourceID, fmt.Errorf("%w: %s", domain.ErrEmptyPayload, r.Coordinate))
	}
	metrics.UpstreamRequests.WithLabelValues("tile", "ok").Inc()

	fetchedAt := s.now()
	expiresAt, ok := resp.Directives.ExpiresAt(fetchedAt)
	if !ok {
		expiresAt = fetchedAt.Add(s.cfg.DefaultTTL)
	}
	return cache.TileCacheValue{Data: resp.Body, FetchedAt: fetchedAt, ExpiresAt: expiresAt}, !resp.Directives.NoStore, nil
}

// settle populates the cache and wakes every waiter, unless the request was
// cancelled first, in which case it does neither.
func (s *FetchScheduler) settle(req *inFlightRequest, value cache.TileCacheValue, store bool, err error) {
	req.mu.Lock()
	defer req.mu.Unlock()

	if req.cancelled {
		return
	}
	if req.sourceCtx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
		err = domain.NewError(domain.KindCancelled, "fetch tile", req.sourceID, req.sourceCtx.Err())
	}

	if err == nil && store {
		s.cache.Set(context.WithoutCancel(req.sourceCtx), req.key, value)
	}

	s.mu.Lock()
	if s.inflight[req.key] == req {
		delete(s.inflight, req.key)
	}
	s.mu.Unlock()

	req.value, req.err, req.settled = value, err, true
	close(req.done)
	s.cache.Unpin(req.key)
}

// CancelSource aborts every in-flight fetch of sourceID. Waiters receive a
// cancelled error and no cancelled fetch populates the cache. It returns the
// number of requests cancelled.
func (s *FetchScheduler) CancelSource(sourceID string) int {
	s.mu.Lock()
	var pending []*inFlightRequest
	for key, req := range s.inflight {
		if req.sourceID == sourceID {
			pending = append(pending, req)
			delete(s.inflight, key)
		}
	}
	s.mu.Unlock()

	cancelled := 0
	for _, req := range pending {
		req.mu.Lock()
		if !req.settled {
			req.cancelled, req.settled = true, true
			req.err = domain.NewError(domain.KindCancelled, "fetch tile", sourceID, context.Canceled)
			close(req.done)
			req.cancel()
			s.cache.Unpin(req.key)
			cancelled++
		}
		req.mu.Unlock()
	}

	if cancelled > 0 {
		metrics.Cancellations.Add(float64(cancelled))
		s.logger.Info("cancelled in-flight tile fetches", "source", sourceID, "count", cancelled)
	}
	return cancelled
}

// InFlight reports the number of outstanding upstream fetches.
func (s *FetchScheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
