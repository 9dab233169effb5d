package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// maxConcurrentWarms bounds parallel weather prompts per warm pass.
const maxConcurrentWarms = 4

// TrailSource is implemented by the service layer. Calling it refreshes the
// trail cache when stale.
type TrailSource interface {
	Trails(ctx context.Context) ([]models.StationMatch, error)
}

// WeatherSource is implemented by the service layer. Calling it stores the
// result in the weather cache on a miss.
type WeatherSource interface {
	Weather(ctx context.Context, prompt string) (models.WeatherResult, error)
}

// Warmer prefetches the trail cache and a list of weather prompts so the first
// user requests after a deploy or TTL expiry do not pay for upstream calls.
type Warmer struct {
	trails  TrailSource
	weather WeatherSource
	logger  *zap.Logger
}

// NewWarmer creates a Warmer. Either source may be nil to skip it.
func NewWarmer(trails TrailSource, weather WeatherSource, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{trails: trails, weather: weather, logger: logger}
}

// Warm refreshes the trail cache, then fetches each prompt concurrently.
// Returns an aggregated error if anything failed.
func (w *Warmer) Warm(ctx context.Context, prompts []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Bool("trails", w.trails != nil), zap.Int("prompts", len(prompts)))

	var errs []error
	if w.trails != nil {
		if _, err := w.trails.Trails(ctx); err != nil {
			errs = append(errs, fmt.Errorf("warm trails: %w", err))
		}
	}

	if w.weather != nil && len(prompts) > 0 {
		var (
			g  errgroup.Group
			mu sync.Mutex
		)
		g.SetLimit(maxConcurrentWarms)
		for _, p := range prompts {
			p := p
			g.Go(func() error {
				if _, err := w.weather.Weather(ctx, p); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("warm weather %q: %w", p, err))
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// Refresh re-checks the trail cache only. Weather prompts must not be
// re-warmed: each weather write resets the shared document timestamp.
func (w *Warmer) Refresh(ctx context.Context) error {
	if w.trails == nil {
		return nil
	}
	if _, err := w.trails.Trails(ctx); err != nil {
		return fmt.Errorf("refresh trails: %w", err)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then calls Refresh at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, prompts []string, interval time.Duration) error {
	if err := w.Warm(ctx, prompts); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				w.logger.Warn("periodic trail refresh failed", zap.Error(err))
			}
		}
	}
}
