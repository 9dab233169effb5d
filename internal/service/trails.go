package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// Finder computes the StationMatch for one trail.
type Finder interface {
	Find(ctx context.Context, trail models.TrailFeature) models.StationMatch
}

// TrailService serves the per-trail station matches from a whole-cache
// document that expires as a unit.
type TrailService struct {
	trails []models.TrailFeature
	finder Finder
	store  cache.Store[models.StationMatch]
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	// mu serializes passes; a waiting caller sees the cache the previous pass wrote.
	mu sync.Mutex
}

func NewTrailService(trails []models.TrailFeature, finder Finder, store cache.Store[models.StationMatch], ttl time.Duration, logger *zap.Logger) *TrailService {
	return &TrailService{
		trails: trails,
		finder: finder,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Trails returns one StationMatch per dataset trail, in dataset order. A
// valid cache is returned without upstream calls; otherwise every trail is
// recomputed and the cache is rewritten. A recompute pass is not cancelled
// by the caller going away.
func (s *TrailService) Trails(ctx context.Context) ([]models.StationMatch, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := loadDocument(ctx, s.store, observability.CacheTrails, logger)
	if len(doc.Entries) > 0 && doc.Age(s.now()) < s.ttl && s.covers(doc.Entries) {
		observability.CacheHitsTotal.WithLabelValues(observability.CacheTrails).Inc()
		logger.Debug("cache hit", zap.String("cache", observability.CacheTrails), zap.Int("entries", len(doc.Entries)))
		return s.ordered(doc.Entries), nil
	}
	observability.CacheMissesTotal.WithLabelValues(observability.CacheTrails).Inc()

	start := time.Now()
	passCtx := context.WithoutCancel(ctx)
	stations := make(map[string]models.StationMatch, len(s.trails))
	for _, t := range s.trails {
		if _, done := stations[t.ID]; done {
			continue
		}
		stations[t.ID] = s.finder.Find(passCtx, t)
	}
	logger.Info("trail station pass complete",
		zap.Int("trails", len(stations)),
		zap.Duration("duration", time.Since(start)),
	)

	if len(stations) > 0 {
		if err := s.store.Save(passCtx, cache.Document[models.StationMatch]{Entries: stations, Timestamp: s.now()}); err != nil {
			logger.Warn("trail cache save failed", zap.Error(err))
		}
	}
	return s.ordered(stations), nil
}

// covers reports whether every dataset trail has an entry. A document
// written for an older dataset is not trusted.
func (s *TrailService) covers(entries map[string]models.StationMatch) bool {
	for _, t := range s.trails {
		if _, ok := entries[t.ID]; !ok {
			return false
		}
	}
	return true
}

// ordered maps each dataset trail to its entry. Trails missing from the
// document are left out.
func (s *TrailService) ordered(entries map[string]models.StationMatch) []models.StationMatch {
	out := make([]models.StationMatch, 0, len(s.trails))
	for _, t := range s.trails {
		if m, ok := entries[t.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}
