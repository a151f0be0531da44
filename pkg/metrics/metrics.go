package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersource_tile_requests_total",
		Help: "Total number of tile requests",
	})

	// CacheLookups is labelled by result: fresh, stale or miss.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rastersource_cache_lookups_total",
		Help: "Total number of tile cache lookups by result",
	}, []string{"result"})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersource_cache_evictions_total",
		Help: "Total number of LRU evictions",
	})

	InFlightJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersource_inflight_joins_total",
		Help: "Total number of tile requests attached to an existing fetch",
	})

	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersource_cancellations_total",
		Help: "Total number of in-flight tile requests cancelled by source removal",
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rastersource_upstream_requests_total",
		Help: "Total number of upstream fetches by kind and outcome",
	}, []string{"kind", "outcome"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rastersource_upstream_latency_seconds",
		Help:    "Latency of upstream fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	SourceResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rastersource_source_resolutions_total",
		Help: "Total number of TileJSON resolutions by outcome",
	}, []string{"outcome"})

	// Durable tier metrics
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rastersource_store_operation_duration_seconds",
		Help:    "Duration of durable cache operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"backend", "operation"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rastersource_store_errors_total",
		Help: "Total number of durable cache errors",
	}, []string{"backend", "operation"})
)
