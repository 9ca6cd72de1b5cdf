// Package metrics provides Prometheus metrics collection for the interaction engine.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Engine metrics cover the interaction cache, the prediction batcher, model
// inference, name resolution, fingerprint extraction and report publishing.
//
// All metrics are automatically registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_cache_lookups_total",
			Help: "Interaction cache lookups by result (hit, miss, shared)",
		},
		[]string{"result"},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddi_cache_entries",
			Help: "Interaction records held in the local cache",
		},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_cache_evictions_total",
			Help: "Interaction records dropped from the local cache by reason",
		},
		[]string{"reason"},
	)

	CacheBackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_cache_backend_errors_total",
			Help: "Shared cache tier failures by operation",
		},
		[]string{"op"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddi_batch_size",
			Help:    "Pairs per model forward pass",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 100},
		},
	)

	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddi_inference_duration_seconds",
			Help:    "Model forward pass latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	FingerprintsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_fingerprints_computed_total",
			Help: "Structures fingerprinted by outcome (ok, invalid)",
		},
		[]string{"outcome"},
	)

	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_resolutions_total",
			Help: "Drug name resolutions by match kind",
		},
		[]string{"match"},
	)

	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_checks_total",
			Help: "Combination checks by overall severity",
		},
		[]string{"severity"},
	)

	ReportsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddi_reports_published_total",
			Help: "Check reports handed to the message broker by result (ok, error)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(CacheEvictions)
	prometheus.MustRegister(CacheBackendErrors)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(InferenceDuration)
	prometheus.MustRegister(FingerprintsComputed)
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ChecksTotal)
	prometheus.MustRegister(ReportsPublished)
}
