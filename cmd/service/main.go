package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/trail-transit-service/internal/cache"
	"github.com/kjstillabower/trail-transit-service/internal/circuitbreaker"
	"github.com/kjstillabower/trail-transit-service/internal/client"
	"github.com/kjstillabower/trail-transit-service/internal/config"
	"github.com/kjstillabower/trail-transit-service/internal/dataset"
	"github.com/kjstillabower/trail-transit-service/internal/geo"
	httphandler "github.com/kjstillabower/trail-transit-service/internal/http"
	"github.com/kjstillabower/trail-transit-service/internal/lifecycle"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
	"github.com/kjstillabower/trail-transit-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	trails, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		logger.Fatal("trail dataset", zap.String("path", cfg.DatasetPath), zap.Error(err))
	}
	logger.Info("trail dataset loaded", zap.Int("trails", len(trails)))

	maps, err := client.NewMapsClient(cfg.GoogleAPIKey, cfg.MapsAPIURL, cfg.MapsTimeout)
	if err != nil {
		logger.Fatal("maps client", zap.Error(err))
	}
	hko := client.NewHKOClient(cfg.HKOAPIURL, cfg.HKOTimeout)
	gemini, err := client.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiAPIURL, cfg.GeminiModel, cfg.GeminiTimeout)
	if err != nil {
		logger.Fatal("gemini client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		newBreaker := func(component string) *circuitbreaker.CircuitBreaker {
			observability.CircuitBreakerState.WithLabelValues(component).Set(0)
			return circuitbreaker.New(circuitbreaker.Config{
				FailureThreshold: cfg.CircuitBreakerFailureThreshold,
				SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
				Timeout:          cfg.CircuitBreakerTimeout,
				Component:        component,
				OnStateChange: func(component string, from, to circuitbreaker.State) {
					observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
					logger.Warn("circuit breaker transition",
						zap.String("component", component), zap.Stringer("from", from), zap.Stringer("to", to))
				},
			})
		}
		maps.SetCircuitBreakers(newBreaker(observability.UpstreamPlaces), newBreaker(observability.UpstreamDistanceMatrix))
		hko.SetCircuitBreaker(newBreaker(observability.BreakerHKO))
		gemini.SetCircuitBreaker(newBreaker(observability.UpstreamGemini))
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	backends, closers, err := newBackends(cfg)
	if err != nil {
		logger.Fatal("cache backend", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	trailStore := cache.NewJSONStore[models.StationMatch](observability.CacheTrails, "stations", backends.trails)
	weatherStore := cache.NewJSONStore[models.WeatherResult](observability.CacheWeather, "data", backends.weather)
	recStore := cache.NewJSONStore[models.RecommendationResult](observability.CacheRecommendations, "data", backends.recommendations)

	finder := service.NewStationFinder(maps, geo.NewHK1980Projector(), service.StationFinderConfig{
		Types:    cfg.StationTypes,
		Radius:   cfg.StationRadius,
		Delay:    cfg.StationDelay,
		MemoSize: cfg.DistanceMemoSize,
		MemoTTL:  cfg.DistanceMemoTTL,
	}, logger)
	trailService := service.NewTrailService(trails, finder, trailStore, cfg.TrailTTL, logger)

	resolver := service.NewWeatherResolver(hko, service.NewWhenParser(), cfg.Location)
	weatherService := service.NewWeatherService(resolver, weatherStore,
		service.WeatherTTL{Today: cfg.WeatherTodayTTL, Other: cfg.WeatherTTL}, cfg.CoalesceTimeout, logger)

	engine := service.NewRecommendationEngine(gemini, logger)
	recService := service.NewRecommendationService(trailService, engine, recStore, cfg.RecommendationTTL, cfg.CoalesceTimeout, logger)

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if cfg.WarmCache {
		warmer := cache.NewWarmer(trailService, weatherService, logger)
		go func() {
			if err := warmer.WarmPeriodic(warmCtx, cfg.WarmPrompts, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	handler := httphandler.NewHandler(weatherService, trailService, recService, logger, cfg.MaxInputLength, cfg.StaticDir)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		InFlight:       inFlight,
	})

	// No WriteTimeout: a cold trail pass has no fixed upper bound.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	stopWarming()
	if err := lifecycle.Drain(srv, inFlight, lifecycle.DrainConfig{
		ShutdownTimeout:  cfg.ShutdownTimeout,
		InFlightTimeout:  cfg.ShutdownInFlightTimeout,
		InFlightInterval: cfg.ShutdownInFlightCheckInterval,
	}, logger, closers...); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type cacheBackends struct {
	trails          cache.Backend
	weather         cache.Backend
	recommendations cache.Backend
}

// newBackends builds one backend per cache document, plus the closers to run at shutdown.
func newBackends(cfg *config.Config) (cacheBackends, []func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mk := func(name string) *cache.MemcachedBackend {
			return cache.NewMemcachedBackend(cfg.MemcachedAddrs, name, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		}
		t, w, r := mk(observability.CacheTrails), mk(observability.CacheWeather), mk(observability.CacheRecommendations)
		if err := t.Ping(); err != nil {
			return cacheBackends{}, nil, fmt.Errorf("memcached ping %s: %w", cfg.MemcachedAddrs, err)
		}
		return cacheBackends{t, w, r}, []func() error{t.Close, w.Close, r.Close}, nil
	case config.CacheBackendMemory:
		return cacheBackends{cache.NewMemoryBackend(), cache.NewMemoryBackend(), cache.NewMemoryBackend()}, nil, nil
	default:
		return cacheBackends{
			cache.NewFileBackend(cfg.TrailCacheFile),
			cache.NewFileBackend(cfg.WeatherCacheFile),
			cache.NewFileBackend(cfg.RecommendationCacheFile),
		}, nil, nil
	}
}
