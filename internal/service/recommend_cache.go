package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// TrailLister supplies the grounding trail list.
type TrailLister interface {
	Trails(ctx context.Context) ([]models.StationMatch, error)
}

// Recommender produces recommendations for a preference over a trail list.
type Recommender interface {
	Recommend(ctx context.Context, preference string, trails []models.StationMatch) models.RecommendationResult
}

var errRecommendationFailed = errors.New("recommendation failed")

// RecommendationService caches recommendations per normalized preference
// with a flat TTL against the document timestamp.
type RecommendationService struct {
	trails    TrailLister
	engine    Recommender
	store     cache.Store[models.RecommendationResult]
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
	writeMu   sync.Mutex
	coalescer *coalescer[models.RecommendationResult]
}

func NewRecommendationService(trails TrailLister, engine Recommender, store cache.Store[models.RecommendationResult], ttl, coalesceTimeout time.Duration, logger *zap.Logger) *RecommendationService {
	return &RecommendationService{
		trails:    trails,
		engine:    engine,
		store:     store,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		coalescer: newCoalescer[models.RecommendationResult](coalesceTimeout),
	}
}

// Recommend always returns a result. Error results are returned but not cached.
func (s *RecommendationService) Recommend(ctx context.Context, preference string) models.RecommendationResult {
	key := normalizeKey(preference)
	logger := observability.LoggerFromContext(ctx, s.logger)

	doc := loadDocument(ctx, s.store, observability.CacheRecommendations, logger)
	if entry, ok := doc.Entries[key]; ok && doc.Age(s.now()) < s.ttl {
		observability.CacheHitsTotal.WithLabelValues(observability.CacheRecommendations).Inc()
		logger.Debug("cache hit", zap.String("cache", observability.CacheRecommendations), zap.String("key", key))
		return entry
	}
	observability.CacheMissesTotal.WithLabelValues(observability.CacheRecommendations).Inc()

	result, _, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (models.RecommendationResult, error) {
		trails, err := s.trails.Trails(ctx)
		if err != nil {
			return models.ErrorRecommendation("Failed to get recommendations: %v", err), err
		}
		res := s.engine.Recommend(ctx, strings.TrimSpace(preference), trails)
		if res.IsError() {
			return res, errRecommendationFailed
		}
		s.persist(ctx, key, res, logger)
		return res, nil
	})
	if err != nil && !errors.Is(err, errRecommendationFailed) && len(result.Records) == 0 {
		// The wait itself failed (timeout or cancellation).
		return models.ErrorRecommendation("Failed to get recommendations: %v", err)
	}
	return result
}

func (s *RecommendationService) persist(ctx context.Context, key string, res models.RecommendationResult, logger *zap.Logger) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := loadDocument(ctx, s.store, observability.CacheRecommendations, logger)
	doc.Entries[key] = res
	doc.Timestamp = s.now()
	if err := s.store.Save(ctx, doc); err != nil {
		logger.Warn("recommendation cache save failed", zap.Error(err))
	}
}
