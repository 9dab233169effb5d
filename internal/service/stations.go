package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/geo"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// PlacesAPI is the subset of client.MapsClient the finder calls.
type PlacesAPI interface {
	NearbyStations(ctx context.Context, at orb.Point, radius int, placeType string) ([]client.Place, error)
	WalkingDistance(ctx context.Context, origin, dest orb.Point) (float64, error)
}

// StationFinderConfig controls the nearby search.
type StationFinderConfig struct {
	Types    []string
	Radius   int
	Delay    time.Duration
	MemoSize int
	MemoTTL  time.Duration
}

// StationFinder finds the station with the shortest walk from a trail's start.
// Calls are strictly serial: per category, then per candidate.
type StationFinder struct {
	api       PlacesAPI
	projector geo.Projector
	cfg       StationFinderConfig
	memo      gcache.Cache
	logger    *zap.Logger
}

func NewStationFinder(api PlacesAPI, projector geo.Projector, cfg StationFinderConfig, logger *zap.Logger) *StationFinder {
	if cfg.MemoSize <= 0 {
		cfg.MemoSize = 4096
	}
	b := gcache.New(cfg.MemoSize).LRU()
	if cfg.MemoTTL > 0 {
		b = b.Expiration(cfg.MemoTTL)
	}
	return &StationFinder{
		api:       api,
		projector: projector,
		cfg:       cfg,
		memo:      b.Build(),
		logger:    logger,
	}
}

type bestStation struct {
	name     string
	category string
	km       float64
	found    bool
}

// Find returns the StationMatch for trail. Upstream failures skip the
// affected category or candidate; when nothing succeeds the station fields are nil.
func (f *StationFinder) Find(ctx context.Context, trail models.TrailFeature) models.StationMatch {
	logger := observability.LoggerFromContext(ctx, f.logger).With(zap.String("trail", trail.ID))

	match := models.StationMatch{
		Name:          trail.Name,
		StartLocation: trail.StartLocation,
		Length:        round2(trail.LengthMeters / 1000),
		Difficulty:    trail.Difficulty,
		Website:       trail.Website,
	}

	origin, err := f.projector.Project(trail.Start.X(), trail.Start.Y())
	if err != nil {
		observability.StationLookupsTotal.WithLabelValues("projection_error").Inc()
		logger.Warn("start point projection failed", zap.Error(err))
		return match
	}

	var best bestStation
	for _, category := range f.cfg.Types {
		f.searchCategory(ctx, origin, category, &best, logger)
		if err := sleepCtx(ctx, f.cfg.Delay); err != nil {
			break
		}
	}

	if !best.found {
		observability.StationLookupsTotal.WithLabelValues("none").Inc()
		return match
	}
	observability.StationLookupsTotal.WithLabelValues("found").Inc()
	name, category, dist := best.name, best.category, round2(best.km)
	match.Station = &name
	match.StationType = &category
	match.Distance = &dist
	return match
}

func (f *StationFinder) searchCategory(ctx context.Context, origin orb.Point, category string, best *bestStation, logger *zap.Logger) {
	candidates, err := f.api.NearbyStations(ctx, origin, f.cfg.Radius, category)
	if err != nil {
		logger.Warn("nearby search failed", zap.String("category", category),
			zap.String("error_category", string(client.CategorizeError(err))), zap.Error(err))
		return
	}

	for _, c := range candidates {
		meters, err := f.walkingDistance(ctx, origin, c.Location)
		if err != nil {
			logger.Debug("walking distance failed", zap.String("station", c.Name), zap.Error(err))
			continue
		}
		km := meters / 1000
		if !best.found || km < best.km {
			*best = bestStation{name: c.Name, category: category, km: km, found: true}
		}
	}
}

func (f *StationFinder) walkingDistance(ctx context.Context, origin, dest orb.Point) (float64, error) {
	key := memoKey(origin, dest)
	if v, err := f.memo.Get(key); err == nil {
		if meters, ok := v.(float64); ok {
			observability.DistanceMemoHitsTotal.Inc()
			return meters, nil
		}
	}

	meters, err := f.api.WalkingDistance(ctx, origin, dest)
	if err != nil {
		return 0, err
	}
	_ = f.memo.Set(key, meters)
	return meters, nil
}

// memoKey quantizes both points to 4 decimal places (about 11 m).
func memoKey(origin, dest orb.Point) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", origin.Lat(), origin.Lon(), dest.Lat(), dest.Lon())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
