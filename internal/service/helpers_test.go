package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/models"
)

var hkt = time.FixedZone("HKT", 8*3600)

// testNow is Tuesday 2025-04-08 10:00 HKT.
var testNow = time.Date(2025, 4, 8, 10, 0, 0, 0, hkt)

type fakeDates struct {
	date time.Time
	ok   bool
}

func (f fakeDates) Parse(text string, now time.Time) (time.Time, bool) {
	return f.date, f.ok
}

type fakeWeatherAPI struct {
	mu           sync.Mutex
	current      client.CurrentConditions
	currentErr   error
	days         []client.ForecastDay
	forecastErr  error
	currentCalls int
	forecastCall int
}

func (f *fakeWeatherAPI) CurrentConditions(ctx context.Context) (client.CurrentConditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	return f.current, f.currentErr
}

func (f *fakeWeatherAPI) Forecast(ctx context.Context) ([]client.ForecastDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastCall++
	return f.days, f.forecastErr
}

func newMemoryStore[V any](t *testing.T, entriesKey string) (*cache.JSONStore[V], *cache.MemoryBackend) {
	t.Helper()
	backend := cache.NewMemoryBackend()
	return cache.NewJSONStore[V]("test", entriesKey, backend), backend
}

func seedStore[V any](t *testing.T, store cache.Store[V], entries map[string]V, ts time.Time) {
	t.Helper()
	if err := store.Save(context.Background(), cache.Document[V]{Entries: entries, Timestamp: ts}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

// failingBackend reads like an empty store and fails every write.
type failingBackend struct{}

func (failingBackend) Read(ctx context.Context) ([]byte, error) { return nil, cache.ErrNotFound }
func (failingBackend) Write(ctx context.Context, data []byte) error {
	return errors.New("disk full")
}

type fakeProjector struct {
	point orb.Point
	err   error
}

func (p fakeProjector) Project(easting, northing float64) (orb.Point, error) {
	return p.point, p.err
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

func stationMatch(name string) models.StationMatch {
	return models.StationMatch{Name: name, Length: 1}
}
