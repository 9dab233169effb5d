package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/geo"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/service"
	"github.com/kjstillabower/trail-transit-service/internal/testhelpers"
)

const recommendationText = "Here you go:\n```json\n[{\"name\": \"Dragon's Back\", \"difficulty\": \"Easy\"}]\n```"

type stack struct {
	router http.Handler
	hko    *testhelpers.Upstream
	google *testhelpers.Upstream
	gemini *testhelpers.Upstream
}

// newStack wires the real clients, services and caches against in-process
// upstream fakes and in-memory cache backends.
func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zap.NewNop()
	s := &stack{
		hko:    testhelpers.NewHKOServer(t, testhelpers.CurrentReport, `{"weatherForecast": []}`),
		google: testhelpers.NewGoogleServer(t, []testhelpers.Station{{Name: "Shau Kei Wan", Lat: 22.2790, Lng: 114.2290}}, 1234),
		gemini: testhelpers.NewGeminiServer(t, recommendationText),
	}

	hko := client.NewHKOClient(s.hko.URL, time.Second)
	maps, err := client.NewMapsClient("test-key", s.google.URL, time.Second)
	if err != nil {
		t.Fatalf("NewMapsClient: %v", err)
	}
	gemini, err := client.NewGeminiClient("test-key", s.gemini.URL, "gemini-pro", time.Second)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}

	hkt := time.FixedZone("HKT", 8*3600)
	resolver := service.NewWeatherResolver(hko, service.NewWhenParser(), hkt)
	weather := service.NewWeatherService(resolver,
		cache.NewJSONStore[models.WeatherResult]("weather", "data", cache.NewMemoryBackend()),
		service.WeatherTTL{Today: time.Hour, Other: 12 * time.Hour}, time.Second, logger)

	finder := service.NewStationFinder(maps, geo.NewHK1980Projector(), service.StationFinderConfig{
		Types:  []string{"subway_station"},
		Radius: 1000,
	}, logger)
	trails := service.NewTrailService([]models.TrailFeature{{
		ID:            "Dragon's Back",
		Name:          "Dragon's Back",
		StartLocation: "To Tei Wan",
		LengthMeters:  8500,
		Difficulty:    "Easy",
		Start:         orb.Point{842000, 813000},
	}}, finder, cache.NewJSONStore[models.StationMatch]("trails", "stations", cache.NewMemoryBackend()), 7*24*time.Hour, logger)

	recs := service.NewRecommendationService(trails, service.NewRecommendationEngine(gemini, logger),
		cache.NewJSONStore[models.RecommendationResult]("recommendations", "data", cache.NewMemoryBackend()),
		24*time.Hour, time.Second, logger)

	s.router = NewRouter(NewHandler(weather, trails, recs, logger, 500, t.TempDir()), RouterConfig{
		AllowedOrigins: []string{"*"},
		InFlight:       &InFlightTracker{},
	})
	return s
}

func TestStack_WeatherCachedAcrossRequests(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 2; i++ {
		w := serve(s.router, http.MethodPost, "/api/weather", `{"prompt":"  "}`)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
		var got models.WeatherResult
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Date != "Today" || got.Condition != "Sunny" || got.Temp != "24°C" || got.Alert != "" {
			t.Errorf("request %d result = %+v", i, got)
		}
	}
	if calls := s.hko.Calls(); calls != 1 {
		t.Errorf("HKO calls = %d, want 1", calls)
	}
}

func TestStack_TrailsComputedOnceThenCached(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 2; i++ {
		w := serve(s.router, http.MethodGet, "/api/trails", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
		var got []models.StationMatch
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("len = %d, want 1", len(got))
		}
		m := got[0]
		if m.Station == nil || *m.Station != "Shau Kei Wan" {
			t.Errorf("station = %v", m.Station)
		}
		if m.StationType == nil || *m.StationType != "subway_station" {
			t.Errorf("stationType = %v", m.StationType)
		}
		if m.Distance == nil || *m.Distance != 1.23 {
			t.Errorf("distance = %v, want 1.23", m.Distance)
		}
		if m.Length != 8.5 {
			t.Errorf("length = %v, want 8.5", m.Length)
		}
	}
	// One nearby search and one distance matrix call for the cold pass only.
	if calls := s.google.Calls(); calls != 2 {
		t.Errorf("Google calls = %d, want 2", calls)
	}
}

func TestStack_Recommend(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 2; i++ {
		w := serve(s.router, http.MethodPost, "/api/recommend", `{"preference":"Easy coastal walk"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
		var resp struct {
			Weather         models.WeatherResult `json:"weather"`
			Recommendations []map[string]any     `json:"recommendations"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Weather.Condition != "Sunny" {
			t.Errorf("weather = %+v", resp.Weather)
		}
		if len(resp.Recommendations) != 1 || resp.Recommendations[0]["name"] != "Dragon's Back" {
			t.Errorf("recommendations = %v", resp.Recommendations)
		}
	}
	if calls := s.gemini.Calls(); calls != 1 {
		t.Errorf("Gemini calls = %d, want 1", calls)
	}
}
