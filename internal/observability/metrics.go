package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream labels used by client metrics.
const (
	UpstreamPlaces          = "places"
	UpstreamDistanceMatrix  = "distance_matrix"
	UpstreamWeatherCurrent  = "weather_current"
	UpstreamWeatherForecast = "weather_forecast"
	UpstreamGemini          = "gemini"

	// BreakerHKO labels the single breaker shared by both HKO data types.
	BreakerHKO = "hko"
)

// Cache labels used by service metrics.
const (
	CacheTrails          = "trails"
	CacheWeather         = "weather"
	CacheRecommendations = "recommendations"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template. Watch for: sudden drops or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. /api/trails is slow on a cold cache by design of the upstream fan-out.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate by upstream and status label. Watch for: error share per upstream.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: gemini p95 growth, distance_matrix volume on cold passes.
	UpstreamDuration *prometheus.HistogramVec

	// Cache hits per cache document. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	CacheMissesTotal *prometheus.CounterVec

	// Whole-document writes by outcome.
	CacheWritesTotal *prometheus.CounterVec

	// Documents treated as empty on load, by reason (not_found, corrupt).
	CacheLoadFailuresTotal *prometheus.CounterVec

	// Station lookups per trail: found, none, projection_error.
	StationLookupsTotal *prometheus.CounterVec

	// Walking-distance memo hits; each hit saves one distance-matrix call.
	DistanceMemoHitsTotal prometheus.Counter

	// Which extraction strategy produced the recommendation payload.
	RecommendationExtractionsTotal *prometheus.CounterVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	ShutdownInFlight prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses (stale, absent, or corrupt)",
		},
		[]string{"cacheType"},
	)
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWritesTotal",
			Help: "Total number of whole-document cache writes",
		},
		[]string{"cacheType", "result"},
	)
	CacheLoadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLoadFailuresTotal",
			Help: "Cache documents treated as empty on load",
		},
		[]string{"cacheType", "reason"},
	)
	StationLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationLookupsTotal",
			Help: "Nearest-station lookups per trail by result",
		},
		[]string{"result"},
	)
	DistanceMemoHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distanceMemoHitsTotal",
			Help: "Walking-distance lookups served from the in-process memo",
		},
	)
	RecommendationExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendationExtractionsTotal",
			Help: "Recommendation responses by extraction strategy",
		},
		[]string{"strategy"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failure",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.5, 1, 5, 15, 60, 300, 900},
		},
	)
	ShutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests observed when shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		CacheHitsTotal, CacheMissesTotal, CacheWritesTotal, CacheLoadFailuresTotal,
		StationLookupsTotal, DistanceMemoHitsTotal,
		RecommendationExtractionsTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		ShutdownInFlight,
	)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordShutdownInFlight records the in-flight count at shutdown.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlight.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
