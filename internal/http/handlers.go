package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/trail-transit-service/internal/lifecycle"
	"github.com/kjstillabower/trail-transit-service/internal/models"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
	"github.com/kjstillabower/trail-transit-service/internal/validation"
)

const maxBodyBytes = 1 << 20

// WeatherProvider resolves a prompt to weather. A non-nil error only marks
// the result as degraded; the result is always usable.
type WeatherProvider interface {
	Weather(ctx context.Context, prompt string) (models.WeatherResult, error)
}

// TrailProvider lists every trail with its nearest station.
type TrailProvider interface {
	Trails(ctx context.Context) ([]models.StationMatch, error)
}

// RecommendationProvider recommends trails for a free-text preference.
type RecommendationProvider interface {
	Recommend(ctx context.Context, preference string) models.RecommendationResult
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather         WeatherProvider
	trails          TrailProvider
	recommendations RecommendationProvider
	logger          *zap.Logger
	maxInputLen     int
	staticDir       string
}

// NewHandler returns a new Handler. Prompt and preference text is cut to
// maxInputLen runes; staticDir holds index.html and the /static/ files.
func NewHandler(
	weather WeatherProvider,
	trails TrailProvider,
	recommendations RecommendationProvider,
	logger *zap.Logger,
	maxInputLen int,
	staticDir string,
) *Handler {
	return &Handler{
		weather:         weather,
		trails:          trails,
		recommendations: recommendations,
		logger:          logger,
		maxInputLen:     maxInputLen,
		staticDir:       staticDir,
	}
}

type weatherRequest struct {
	Prompt string `json:"prompt"`
}

type recommendRequest struct {
	Preference string `json:"preference"`
}

type recommendResponse struct {
	Weather         models.WeatherResult        `json:"weather"`
	Recommendations models.RecommendationResult `json:"recommendations"`
}

// GetReady handles GET /api/ready.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	status := lifecycle.Status()
	code := http.StatusOK
	if status == lifecycle.StatusShuttingDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// PostWeather handles POST /api/weather. It always answers 200; upstream
// trouble shows up in the result's alert text.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	var body weatherRequest
	h.decodeBody(r, &body)
	prompt := validation.Sanitize(body.Prompt, h.maxInputLen)

	result, err := h.weather.Weather(r.Context(), prompt)
	if err != nil {
		h.requestLogger(r).Debug("serving degraded weather", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTrails handles GET /api/trails.
func (h *Handler) GetTrails(w http.ResponseWriter, r *http.Request) {
	trails, err := h.trails.Trails(r.Context())
	if err != nil {
		h.requestLogger(r).Error("trail listing failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "TRAILS_UNAVAILABLE", "Unable to list trails")
		return
	}
	if trails == nil {
		trails = []models.StationMatch{}
	}
	writeJSON(w, http.StatusOK, trails)
}

// PostRecommend handles POST /api/recommend. The preference text doubles as
// the weather prompt.
func (h *Handler) PostRecommend(w http.ResponseWriter, r *http.Request) {
	var body recommendRequest
	h.decodeBody(r, &body)
	preference := validation.Sanitize(body.Preference, h.maxInputLen)

	weather, err := h.weather.Weather(r.Context(), preference)
	if err != nil {
		h.requestLogger(r).Debug("serving degraded weather", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, recommendResponse{
		Weather:         weather,
		Recommendations: h.recommendations.Recommend(r.Context(), preference),
	})
}

// GetIndex serves the landing page.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
}

// decodeBody fills v from the JSON body. A missing or undecodable body
// leaves v at its zero value.
func (h *Handler) decodeBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		h.requestLogger(r).Debug("undecodable request body, using empty input", zap.Error(err))
	}
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

// RouterConfig carries the router's optional collaborators.
type RouterConfig struct {
	// Limiter guards /api/trails. Weather and recommend always answer 200 with
	// a best-effort body and are not limited. Nil disables limiting.
	Limiter        *rate.Limiter
	AllowedOrigins []string
	InFlight       *InFlightTracker
}

// NewRouter builds the service's route table and middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	if cfg.InFlight != nil {
		router.Use(cfg.InFlight.Middleware)
	}
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/api/ready", h.GetReady).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(CORSMiddleware(cfg.AllowedOrigins))
	api.HandleFunc("/weather", h.PostWeather).Methods(http.MethodPost, http.MethodOptions)
	api.Handle("/trails", RateLimitMiddleware(cfg.Limiter)(http.HandlerFunc(h.GetTrails))).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/recommend", h.PostRecommend).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(h.staticDir))),
	).Methods(http.MethodGet)
	return router
}
