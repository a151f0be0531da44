package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/attribution"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/resolver"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/metrics"
)

// TileOutcome is delivered exactly once on the channel returned by
// GetTileAsync.
type TileOutcome struct {
	Result *TileResult
	Err    error
}

type Stats struct {
	Scope        string         `json:"scope"`
	Sources      int            `json:"sources"`
	ByState      map[string]int `json:"by_state"`
	InFlight     int            `json:"in_flight"`
	CachedTiles  int            `json:"cached_entries"`
	CacheBackend string         `json:"cache_backend"`
}

// sourceHandle owns the mutable state of one registered source. Only the
// resolution goroutine started by Resolve writes desc after creation.
type sourceHandle struct {
	mu        sync.RWMutex
	desc      domain.SourceDescriptor
	resolving chan struct{}
	removed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (h *sourceHandle) snapshot() domain.SourceDescriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.desc.Clone()
}

// SourceUseCase is the registry of raster sources for one map instance.
type SourceUseCase struct {
	scope       string
	resolver    *resolver.Resolver
	loader      *TileJSONLoader
	scheduler   *FetchScheduler
	cache       *cache.LayeredCache
	attribution *attribution.Registry
	logger      logger.Logger

	mu      sync.RWMutex
	sources map[string]*sourceHandle
}

// NewSourceUseCase wires the registry. An empty instance scope is replaced
// by a random one so two instances never share cache entries by accident.
func NewSourceUseCase(cfg *config.Config, t transport.Transport, c *cache.LayeredCache, l logger.Logger) *SourceUseCase {
	scope := cfg.Tiles.InstanceScope
	if scope == "" {
		scope = uuid.NewString()
	}

	return &SourceUseCase{
		scope:    scope,
		resolver: resolver.New(cfg.Tiles.PixelRatio),
		loader: NewTileJSONLoader(t, c, LoaderConfig{
			Scope:      scope,
			TTL:        cfg.Cache.TileJSONTTL,
			Timeout:    cfg.Transport.Timeout,
			FirstParty: cfg.FirstParty,
		}, l),
		scheduler: NewFetchScheduler(t, c, SchedulerConfig{
			Scope:      scope,
			DefaultTTL: cfg.Cache.DefaultTTL,
			Timeout:    cfg.Transport.Timeout,
		}, l),
		cache:       c,
		attribution: attribution.NewRegistry(),
		logger:      l,
		sources:     make(map[string]*sourceHandle),
	}
}

func (uc *SourceUseCase) Scope() string {
	return uc.scope
}

// CreateSource registers a source. Explicit template sources are Ready at
// once; TileJSON sources start Pending until Resolve is called.
func (uc *SourceUseCase) CreateSource(identifier string, origin domain.Origin, opts domain.Options) (domain.SourceDescriptor, error) {
	var (
		d   domain.SourceDescriptor
		err error
	)
	switch origin.Kind {
	case domain.OriginExplicitTemplates:
		d, err = domain.NewTemplateSource(identifier, origin.Templates, opts)
	case domain.OriginTileJSONReference:
		d, err = domain.NewTileJSONSource(identifier, origin.ConfigurationURL, opts)
	default:
		err = domain.NewError(domain.KindConfiguration, "create source", identifier, fmt.Errorf("unknown origin kind %d", origin.Kind))
	}
	if err != nil {
		return domain.SourceDescriptor{}, err
	}

	uc.mu.Lock()
	if _, exists := uc.sources[identifier]; exists {
		uc.mu.Unlock()
		return domain.SourceDescriptor{}, domain.NewError(domain.KindConfiguration, "create source", identifier, domain.ErrSourceExists)
	}
	ctx, cancel := context.WithCancel(context.Background())
	uc.sources[identifier] = &sourceHandle{desc: d, ctx: ctx, cancel: cancel}
	uc.mu.Unlock()

	if d.State == domain.StateReady {
		uc.attribution.Set(identifier, d.Attribution)
	}

	uc.logger.Info("source created", "source", identifier, "origin", origin.Kind.String(), "state", d.State.String())
	return d.Clone(), nil
}

func (uc *SourceUseCase) handle(op, identifier string) (*sourceHandle, error) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	h, ok := uc.sources[identifier]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, op, identifier, domain.ErrSourceNotFound)
	}
	return h, nil
}

// Source returns the current descriptor snapshot of identifier.
func (uc *SourceUseCase) Source(identifier string) (domain.SourceDescriptor, error) {
	h, err := uc.handle("get source", identifier)
	if err != nil {
		return domain.SourceDescriptor{}, err
	}
	return h.snapshot(), nil
}

// Sources returns every registered descriptor ordered by identifier.
func (uc *SourceUseCase) Sources() []domain.SourceDescriptor {
	uc.mu.RLock()
	handles := make([]*sourceHandle, 0, len(uc.sources))
	for _, h := range uc.sources {
		handles = append(handles, h)
	}
	uc.mu.RUnlock()

	out := make([]domain.SourceDescriptor, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Resolve drives a TileJSON source to Ready or Failed. A Ready source is
// returned as is, a Failed one is moved back to Pending and resolved again,
// and a call on a source already resolving joins that resolution. The
// returned error carries the failure reason when the source ends Failed.
func (uc *SourceUseCase) Resolve(ctx context.Context, identifier string) (domain.SourceDescriptor, error) {
	const op = "resolve source"

	h, err := uc.handle(op, identifier)
	if err != nil {
		return domain.SourceDescriptor{}, err
	}

	h.mu.Lock()
	if h.desc.State == domain.StateReady {
		d := h.desc.Clone()
		h.mu.Unlock()
		return d, nil
	}
	if h.resolving == nil {
		if h.desc.State == domain.StateFailed {
			pending, err := h.desc.Pending()
			if err != nil {
				h.mu.Unlock()
				return domain.SourceDescriptor{}, err
			}
			h.desc = pending
		}
		h.resolving = make(chan struct{})
		go uc.runResolution(h, h.desc.Origin.ConfigurationURL, h.resolving)
	}
	done := h.resolving
	h.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return h.snapshot(), domain.NewError(domain.KindCancelled, op, identifier, ctx.Err())
	}

	h.mu.RLock()
	d, removed := h.desc.Clone(), h.removed
	h.mu.RUnlock()

	if removed {
		return d, domain.NewError(domain.KindCancelled, op, identifier, context.Canceled)
	}
	if d.State == domain.StateFailed {
		return d, d.Reason
	}
	return d, nil
}

// runResolution is the only writer of a resolving source's descriptor.
func (uc *SourceUseCase) runResolution(h *sourceHandle, configurationURL string, done chan struct{}) {
	defer close(done)

	res, loadErr := uc.loader.Load(h.ctx, configurationURL)

	h.mu.Lock()
	h.resolving = nil
	if h.removed {
		h.mu.Unlock()
		return
	}

	id := h.desc.Identifier
	var next domain.SourceDescriptor
	var err error
	if loadErr == nil {
		next, err = h.desc.Ready(res)
		if err != nil {
			loadErr = err
		}
	}
	if loadErr != nil {
		next, err = h.desc.Failed(loadErr)
	}
	if err != nil {
		h.mu.Unlock()
		uc.logger.Error("invalid source transition", "source", id, "error", err)
		return
	}
	h.desc = next
	d := next.Clone()
	h.mu.Unlock()

	if d.State == domain.StateReady {
		uc.attribution.Set(d.Identifier, d.Attribution)
		metrics.SourceResolutions.WithLabelValues("ready").Inc()
		uc.logger.Info("source resolved", "source", d.Identifier, "tiles", len(d.TileURLTemplates), "minzoom", d.MinZoom, "maxzoom", d.MaxZoom, "tile_size", d.TileSize)
		return
	}
	metrics.SourceResolutions.WithLabelValues("failed").Inc()
	uc.logger.Warn("source resolution failed", "source", d.Identifier, "error", d.Reason)
}

// GetTile returns the tile at coord for identifier, blocking until it is
// available, it fails, or ctx ends.
func (uc *SourceUseCase) GetTile(ctx context.Context, identifier string, coord domain.TileCoordinate) (*TileResult, error) {
	metrics.TileRequests.Inc()

	h, err := uc.handle("get tile", identifier)
	if err != nil {
		return nil, err
	}
	d := h.snapshot()

	r, err := uc.resolver.Resolve(d, coord)
	if err != nil {
		return nil, err
	}
	if h.ctx.Err() != nil {
		return nil, domain.NewError(domain.KindCancelled, "get tile", identifier, h.ctx.Err())
	}
	return uc.scheduler.GetTile(ctx, h.ctx, d, r)
}

// GetTileAsync is GetTile delivered on a channel that receives exactly one
// outcome.
func (uc *SourceUseCase) GetTileAsync(ctx context.Context, identifier string, coord domain.TileCoordinate) <-chan TileOutcome {
	out := make(chan TileOutcome, 1)
	go func() {
		res, err := uc.GetTile(ctx, identifier, coord)
		out <- TileOutcome{Result: res, Err: err}
	}()
	return out
}

// RemoveSource unregisters identifier. In-flight fetches are cancelled and
// their waiters told so, cached tiles are invalidated and the source's
// attribution is dropped.
func (uc *SourceUseCase) RemoveSource(ctx context.Context, identifier string) error {
	uc.mu.Lock()
	h, ok := uc.sources[identifier]
	if ok {
		delete(uc.sources, identifier)
	}
	uc.mu.Unlock()
	if !ok {
		return domain.NewError(domain.KindNotFound, "remove source", identifier, domain.ErrSourceNotFound)
	}

	h.mu.Lock()
	h.removed = true
	h.mu.Unlock()
	h.cancel()

	cancelled := uc.scheduler.CancelSource(identifier)
	uc.cache.InvalidateSource(ctx, uc.scope, identifier)
	uc.attribution.Remove(identifier)

	uc.logger.Info("source removed", "source", identifier, "cancelled_fetches", cancelled)
	return nil
}

// Attribution returns the attribution of every Ready source in registration
// order. dedupe collapses entries repeated across sources.
func (uc *SourceUseCase) Attribution(dedupe bool) []domain.AttributionInfo {
	all := uc.attribution.All()
	if dedupe {
		return attribution.Deduplicate(all)
	}
	return all
}

// SourceAttribution returns the attribution contributed by one source.
func (uc *SourceUseCase) SourceAttribution(identifier string) ([]domain.AttributionInfo, error) {
	if _, err := uc.handle("get attribution", identifier); err != nil {
		return nil, err
	}
	infos, _ := uc.attribution.Source(identifier)
	return infos, nil
}

func (uc *SourceUseCase) Stats() Stats {
	descs := uc.Sources()
	st := Stats{
		Scope:        uc.scope,
		Sources:      len(descs),
		ByState:      make(map[string]int),
		InFlight:     uc.scheduler.InFlight(),
		CachedTiles:  uc.cache.Len(),
		CacheBackend: uc.cache.Backend(),
	}
	for _, d := range descs {
		st.ByState[d.State.String()]++
	}
	return st
}

// Close removes every source.
func (uc *SourceUseCase) Close(ctx context.Context) {
	for _, d := range uc.Sources() {
		_ = uc.RemoveSource(ctx, d.Identifier)
	}
}
