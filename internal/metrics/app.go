package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kopimap"

// Search backend metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_backend_requests_total",
			Help:      "Total number of search backend requests",
		},
		[]string{"op", "status"}, // op: search/get/update, status: ok/not_found/error
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_backend_request_duration_seconds",
			Help:      "Search backend request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"op"},
	)

	SearchFilterExpressions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_filter_expressions",
			Help:      "Number of compiled filter expressions per search",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)
)

// Rate limiter metrics.
var (
	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit decisions",
		},
		[]string{"result"}, // "allowed" / "denied"
	)

	RateLimitErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_errors_total",
			Help:      "Shared rate limiter store failures (request admitted)",
		},
	)

	RateLimitTrackedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tracked_clients",
			Help:      "Client identifiers held by the in-process limiter",
		},
	)
)

// Cache, secrets and media metrics.
var (
	CafeCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cafe_cache_total",
			Help:      "Cafe document cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SecretRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secret_refresh_total",
			Help:      "Secret provider lookups",
		},
		[]string{"status"}, // "ok" / "error"
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_uploads_total",
			Help:      "Review image uploads",
		},
		[]string{"driver", "status"},
	)

	ModerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_moderation_total",
			Help:      "Image moderation verdicts",
		},
		[]string{"result"}, // "safe" / "unsafe" / "error"
	)
)

var appMetricsRegistered bool

// RegisterAppMetrics registers application metrics. Must be called once from main.
func RegisterAppMetrics() {
	if appMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		SearchRequestsTotal,
		SearchRequestDuration,
		SearchFilterExpressions,
		RateLimitDecisionsTotal,
		RateLimitErrorsTotal,
		RateLimitTrackedClients,
		CafeCacheTotal,
		SecretRefreshTotal,
		UploadsTotal,
		ModerationTotal,
	)
	appMetricsRegistered = true
}
