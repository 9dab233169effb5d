package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// Resolver produces a WeatherResult for a prompt. A non-nil error marks the
// result as degraded.
type Resolver interface {
	Resolve(ctx context.Context, prompt string) (models.WeatherResult, error)
}

// WeatherTTL holds the two freshness windows of the weather cache.
type WeatherTTL struct {
	Today time.Duration
	Other time.Duration
}

// WeatherService is a cache-aside wrapper around a Resolver backed by one
// whole-document store.
type WeatherService struct {
	resolver  Resolver
	store     cache.Store[models.WeatherResult]
	ttl       WeatherTTL
	logger    *zap.Logger
	now       func() time.Time
	writeMu   sync.Mutex
	coalescer *coalescer[models.WeatherResult]
}

// NewWeatherService creates a WeatherService. coalesceTimeout bounds how long
// a caller waits on another caller's in-flight lookup for the same key.
func NewWeatherService(resolver Resolver, store cache.Store[models.WeatherResult], ttl WeatherTTL, coalesceTimeout time.Duration, logger *zap.Logger) *WeatherService {
	return &WeatherService{
		resolver:  resolver,
		store:     store,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		coalescer: newCoalescer[models.WeatherResult](coalesceTimeout),
	}
}

// Weather returns the cached result for prompt when fresh, otherwise resolves
// it and persists it. A non-nil error means the returned result is degraded;
// degraded results are not cached.
func (s *WeatherService) Weather(ctx context.Context, prompt string) (models.WeatherResult, error) {
	key := normalizeKey(prompt)
	logger := observability.LoggerFromContext(ctx, s.logger)

	doc := loadDocument(ctx, s.store, observability.CacheWeather, logger)
	if entry, ok := doc.Entries[key]; ok && doc.Age(s.now()) < s.ttlFor(key) {
		observability.CacheHitsTotal.WithLabelValues(observability.CacheWeather).Inc()
		logger.Debug("cache hit", zap.String("cache", observability.CacheWeather), zap.String("key", key))
		return entry, nil
	}
	observability.CacheMissesTotal.WithLabelValues(observability.CacheWeather).Inc()
	logger.Debug("cache miss, resolving weather", zap.String("key", key))

	result, shared, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (models.WeatherResult, error) {
		res, err := s.resolver.Resolve(ctx, strings.TrimSpace(prompt))
		if err != nil {
			return res, err
		}
		s.persist(ctx, key, res, logger)
		return res, nil
	})
	if err != nil {
		logger.Warn("weather lookup degraded", zap.String("key", key), zap.Bool("shared", shared), zap.Error(err))
		if result == (models.WeatherResult{}) {
			// The wait itself failed (timeout or cancellation).
			result = models.WeatherResult{
				Date:      todayLabel,
				Condition: "Unable to fetch current weather",
				Temp:      unknownTemp,
				Alert:     fmt.Sprintf("Weather data fetch error: %v", err),
			}
		}
	}
	return result, err
}

func (s *WeatherService) ttlFor(key string) time.Duration {
	if strings.Contains(key, "today") {
		return s.ttl.Today
	}
	return s.ttl.Other
}

// persist re-reads the document under the write lock so entries written by
// other callers since our load are kept.
func (s *WeatherService) persist(ctx context.Context, key string, res models.WeatherResult, logger *zap.Logger) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := loadDocument(ctx, s.store, observability.CacheWeather, logger)
	doc.Entries[key] = res
	doc.Timestamp = s.now()
	if err := s.store.Save(ctx, doc); err != nil {
		logger.Warn("weather cache save failed", zap.Error(err))
	}
}

// loadDocument loads a store, logging anything other than a missing document.
// The returned document is always usable.
func loadDocument[V any](ctx context.Context, store cache.Store[V], name string, logger *zap.Logger) cache.Document[V] {
	doc, err := store.Load(ctx)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("cache load failed, treating as empty", zap.String("cache", name), zap.Error(err))
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]V)
	}
	return doc
}

// normalizeKey trims whitespace and lowercases so equivalent inputs share a cache entry.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
