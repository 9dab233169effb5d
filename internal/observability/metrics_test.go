package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that label dimensions match usage across the
// client, cache, service and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/trails").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues(UpstreamPlaces, "success").Inc()
	UpstreamDuration.WithLabelValues(UpstreamGemini, "server_error").Observe(0.4)
	CacheHitsTotal.WithLabelValues(CacheWeather).Inc()
	CacheMissesTotal.WithLabelValues(CacheTrails).Inc()
	CacheWritesTotal.WithLabelValues(CacheRecommendations, "success").Inc()
	CacheLoadFailuresTotal.WithLabelValues(CacheTrails, "corrupt").Inc()
	StationLookupsTotal.WithLabelValues("found").Inc()
	DistanceMemoHitsTotal.Inc()
	RecommendationExtractionsTotal.WithLabelValues("fenced_json").Inc()
	RecordCircuitBreakerTransition("gemini", "closed", "open", 1)
	RecordShutdownInFlight(3)
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/ready", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
