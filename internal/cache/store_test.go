package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/trail-transit-service/internal/models"
)

func TestJSONStore_RoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "station_cache.json")
	store := NewJSONStore[models.StationMatch]("trails", "stations", NewFileBackend(path))
	ctx := context.Background()

	station := "Tai Wai"
	dist := 0.85
	ts := time.Unix(1744300000, 500_000_000)
	doc := NewDocument[models.StationMatch]()
	doc.Entries["MacLehose Trail Section 1"] = models.StationMatch{
		Name:     "MacLehose Trail Section 1",
		Length:   10.6,
		Station:  &station,
		Distance: &dist,
	}
	doc.Timestamp = ts

	require.NoError(t, store.Save(ctx, doc))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"stations": {`)
	assert.Contains(t, string(raw), `"timestamp": 1744300000.5`)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts), "timestamp = %v, want %v", got.Timestamp, ts)
	require.Contains(t, got.Entries, "MacLehose Trail Section 1")
	entry := got.Entries["MacLehose Trail Section 1"]
	require.NotNil(t, entry.Station)
	assert.Equal(t, "Tai Wai", *entry.Station)
	assert.Equal(t, 10.6, entry.Length)
}

func TestJSONStore_LoadMissing(t *testing.T) {
	store := NewJSONStore[models.WeatherResult]("weather", "data", NewFileBackend(filepath.Join(t.TempDir(), "weather_cache.json")))

	doc, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotNil(t, doc.Entries)
	assert.Empty(t, doc.Entries)
	assert.True(t, doc.Timestamp.IsZero())
}

func TestJSONStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"data": {`},
		{"entries wrong type", `{"data": [1,2], "timestamp": 1}`},
		{"timestamp wrong type", `{"data": {}, "timestamp": "yesterday"}`},
		{"top level array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			require.NoError(t, backend.Write(context.Background(), []byte(tt.raw)))
			store := NewJSONStore[models.WeatherResult]("weather", "data", backend)

			doc, err := store.Load(context.Background())
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Empty(t, doc.Entries)
		})
	}
}

func TestJSONStore_LoadMissingFields(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Write(context.Background(), []byte(`{}`)))
	store := NewJSONStore[models.WeatherResult]("weather", "data", backend)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Entries)
	assert.True(t, doc.Timestamp.IsZero())
}

func TestJSONStore_SaveOverwrites(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewJSONStore[models.WeatherResult]("weather", "data", backend)
	ctx := context.Background()

	first := NewDocument[models.WeatherResult]()
	first.Entries["today"] = models.WeatherResult{Date: "Today", Condition: "Sunny"}
	first.Timestamp = time.Unix(100, 0)
	require.NoError(t, store.Save(ctx, first))

	second := NewDocument[models.WeatherResult]()
	second.Entries["tomorrow"] = models.WeatherResult{Date: "Wednesday, 2025-04-09", Condition: "Cloudy"}
	second.Timestamp = time.Unix(200, 0)
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)
	assert.Contains(t, got.Entries, "tomorrow")
	assert.Equal(t, int64(200), got.Timestamp.Unix())
}

func TestDocument_Age(t *testing.T) {
	now := time.Date(2025, 4, 8, 12, 0, 0, 0, time.UTC)

	doc := NewDocument[string]()
	assert.Greater(t, doc.Age(now), 100*365*24*time.Hour)

	doc.Timestamp = now.Add(-90 * time.Minute)
	assert.Equal(t, 90*time.Minute, doc.Age(now))
}

func TestEpochSeconds(t *testing.T) {
	assert.Equal(t, 0.0, toEpochSeconds(time.Time{}))
	assert.True(t, fromEpochSeconds(0).IsZero())
	assert.True(t, fromEpochSeconds(-5).IsZero())

	ts := time.Unix(1744300000, 250_000_000)
	assert.True(t, fromEpochSeconds(toEpochSeconds(ts)).Equal(ts))
}

func TestMemoryBackend_ReadBeforeWrite(t *testing.T) {
	_, err := NewMemoryBackend().Read(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewFileBackend(filepath.Join(t.TempDir(), "x.json"))
	assert.ErrorIs(t, b.Write(ctx, []byte("{}")), context.Canceled)
	_, err := b.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAddrs(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, parseAddrs(" a:1, ,b:2 "))
	assert.Nil(t, parseAddrs(""))
}
