package service

import (
	"context"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/geo"
	"github.com/kjstillabower/trail-transit-service/internal/models"
)

type fakePlaces struct {
	mu            sync.Mutex
	places        map[string][]client.Place
	placesErr     map[string]error
	meters        map[string]float64 // by place name; missing means error
	nearbyCalls   []string
	distanceCalls int
}

func (f *fakePlaces) NearbyStations(ctx context.Context, at orb.Point, radius int, placeType string) ([]client.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearbyCalls = append(f.nearbyCalls, placeType)
	if err := f.placesErr[placeType]; err != nil {
		return nil, err
	}
	return f.places[placeType], nil
}

func (f *fakePlaces) WalkingDistance(ctx context.Context, origin, dest orb.Point) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distanceCalls++
	for _, list := range f.places {
		for _, p := range list {
			if p.Location == dest {
				if m, ok := f.meters[p.Name]; ok {
					return m, nil
				}
			}
		}
	}
	return 0, client.ErrNoRoute
}

var defaultFinderConfig = StationFinderConfig{
	Types:  []string{"subway_station", "bus_station"},
	Radius: 2000,
}

func testTrail(id string) models.TrailFeature {
	return models.TrailFeature{
		ID:            id,
		Name:          id,
		StartLocation: "Pak Tam Chung",
		LengthMeters:  5432.1,
		Difficulty:    "Moderate",
		Website:       "https://example.org/" + id,
		Start:         orb.Point{836694.05, 819069.80},
	}
}

func TestStationFinder_PicksShortestWalkAcrossCategories(t *testing.T) {
	api := &fakePlaces{
		places: map[string][]client.Place{
			"subway_station": {
				{Name: "Tai Wai", Location: orb.Point{114.178, 22.373}},
				{Name: "Sha Tin", Location: orb.Point{114.187, 22.382}},
			},
			"bus_station": {
				{Name: "Pak Tam Chung Bus Terminus", Location: orb.Point{114.321, 22.402}},
			},
		},
		meters: map[string]float64{"Tai Wai": 1850, "Sha Tin": 2400, "Pak Tam Chung Bus Terminus": 346},
	}
	f := NewStationFinder(api, fakeProjector{point: orb.Point{114.32, 22.40}}, defaultFinderConfig, nil)

	got := f.Find(context.Background(), testTrail("MacLehose Trail Section 1"))

	if got.Station == nil || *got.Station != "Pak Tam Chung Bus Terminus" {
		t.Fatalf("Station = %v, want Pak Tam Chung Bus Terminus", got.Station)
	}
	if got.StationType == nil || *got.StationType != "bus_station" {
		t.Errorf("StationType = %v, want bus_station", got.StationType)
	}
	if got.Distance == nil || *got.Distance != 0.35 {
		t.Errorf("Distance = %v, want 0.35", got.Distance)
	}
	if got.Length != 5.43 {
		t.Errorf("Length = %v, want 5.43", got.Length)
	}
	if got.Name != "MacLehose Trail Section 1" || got.StartLocation != "Pak Tam Chung" || got.Difficulty != "Moderate" {
		t.Errorf("copied fields = %+v", got)
	}
	if len(api.nearbyCalls) != 2 || api.nearbyCalls[0] != "subway_station" || api.nearbyCalls[1] != "bus_station" {
		t.Errorf("nearby calls = %v, want subway_station then bus_station", api.nearbyCalls)
	}
}

func TestStationFinder_NoCandidates(t *testing.T) {
	api := &fakePlaces{}
	f := NewStationFinder(api, fakeProjector{point: orb.Point{114.2, 22.3}}, defaultFinderConfig, nil)

	got := f.Find(context.Background(), testTrail("Remote Trail"))

	if got.Station != nil || got.StationType != nil || got.Distance != nil {
		t.Errorf("station fields = (%v, %v, %v), want all nil", got.Station, got.StationType, got.Distance)
	}
	if got.Length != 5.43 {
		t.Errorf("Length = %v, want 5.43", got.Length)
	}
}

func TestStationFinder_FailuresAreSkipped(t *testing.T) {
	api := &fakePlaces{
		places: map[string][]client.Place{
			"bus_station": {
				{Name: "Unroutable", Location: orb.Point{114.1, 22.1}},
				{Name: "Sai Kung", Location: orb.Point{114.27, 22.38}},
			},
		},
		placesErr: map[string]error{"subway_station": client.ErrRateLimited},
		meters:    map[string]float64{"Sai Kung": 1234.5},
	}
	f := NewStationFinder(api, fakeProjector{point: orb.Point{114.2, 22.3}}, defaultFinderConfig, nil)

	got := f.Find(context.Background(), testTrail("Sai Kung Trail"))

	if got.Station == nil || *got.Station != "Sai Kung" {
		t.Fatalf("Station = %v, want Sai Kung", got.Station)
	}
	if *got.Distance != 1.23 {
		t.Errorf("Distance = %v, want 1.23", *got.Distance)
	}
}

func TestStationFinder_ProjectionErrorLeavesNulls(t *testing.T) {
	api := &fakePlaces{}
	f := NewStationFinder(api, fakeProjector{err: geo.ErrProjection}, defaultFinderConfig, nil)

	got := f.Find(context.Background(), testTrail("Broken Geometry"))

	if got.Station != nil || got.Distance != nil {
		t.Errorf("station fields should be nil after projection error")
	}
	if len(api.nearbyCalls) != 0 {
		t.Errorf("nearby calls = %d, want 0", len(api.nearbyCalls))
	}
}

func TestStationFinder_MemoizesWalkingDistance(t *testing.T) {
	api := &fakePlaces{
		places: map[string][]client.Place{
			"bus_station": {{Name: "Wong Nai Chung Gap", Location: orb.Point{114.19, 22.26}}},
		},
		meters: map[string]float64{"Wong Nai Chung Gap": 120},
	}
	f := NewStationFinder(api, fakeProjector{point: orb.Point{114.19, 22.259}}, defaultFinderConfig, nil)

	first := f.Find(context.Background(), testTrail("Wilson Trail Section 1"))
	second := f.Find(context.Background(), testTrail("Hong Kong Trail Section 5"))

	if api.distanceCalls != 1 {
		t.Errorf("distance calls = %d, want 1", api.distanceCalls)
	}
	if *first.Distance != *second.Distance {
		t.Errorf("memoized distance = %v, want %v", *second.Distance, *first.Distance)
	}
}

func TestStationFinder_CancelledContextStopsBetweenCategories(t *testing.T) {
	api := &fakePlaces{}
	cfg := defaultFinderConfig
	f := NewStationFinder(api, fakeProjector{point: orb.Point{114.2, 22.3}}, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Find(ctx, testTrail("T"))

	if len(api.nearbyCalls) != 1 {
		t.Errorf("nearby calls = %d, want 1 before stopping", len(api.nearbyCalls))
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{5.4321, 5.43},
		{0.346, 0.35},
		{1.2345, 1.23},
		{0, 0},
		{10, 10},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMemoKey_Quantizes(t *testing.T) {
	a := memoKey(orb.Point{114.123441, 22.300001}, orb.Point{114.2, 22.4})
	b := memoKey(orb.Point{114.123449, 22.300004}, orb.Point{114.2, 22.4})
	if a != b {
		t.Errorf("memoKey() = %q and %q, want equal after quantization", a, b)
	}
}
