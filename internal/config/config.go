package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendFile      = "file"
	CacheBackendMemcached = "memcached"
	CacheBackendMemory    = "memory"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	GoogleAPIKey string
	GeminiAPIKey string

	MapsAPIURL    string
	MapsTimeout   time.Duration
	HKOAPIURL     string
	HKOTimeout    time.Duration
	GeminiAPIURL  string
	GeminiModel   string
	GeminiTimeout time.Duration

	StationTypes     []string
	StationRadius    int
	StationDelay     time.Duration
	DistanceMemoSize int
	DistanceMemoTTL  time.Duration

	DatasetPath string
	StaticDir   string
	Location    *time.Location

	CacheBackend            string
	TrailCacheFile          string
	WeatherCacheFile        string
	RecommendationCacheFile string
	TrailTTL                time.Duration
	WeatherTodayTTL         time.Duration
	WeatherTTL              time.Duration
	RecommendationTTL       time.Duration
	CoalesceTimeout         time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS       int
	RateLimitBurst     int
	CORSAllowedOrigins []string
	MaxInputLength     int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	WarmCache    bool
	WarmPrompts  []string
	WarmInterval time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		StaticDir      string   `yaml:"static_dir"`
		Timezone       string   `yaml:"timezone"`
		MaxInputLength int      `yaml:"max_input_length"`
		CORSOrigins    []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Dataset struct {
		Path string `yaml:"path"`
	} `yaml:"dataset"`

	Maps struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"maps_api"`

	Weather struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Gemini struct {
		URL     string `yaml:"url"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"gemini_api"`

	Stations struct {
		Types    []string `yaml:"types"`
		Radius   int      `yaml:"radius"`
		Delay    string   `yaml:"delay"`
		MemoSize int      `yaml:"memo_size"`
		MemoTTL  string   `yaml:"memo_ttl"`
	} `yaml:"stations"`

	Cache struct {
		Backend string `yaml:"backend"`
		Files   struct {
			Trails          string `yaml:"trails"`
			Weather         string `yaml:"weather"`
			Recommendations string `yaml:"recommendations"`
		} `yaml:"files"`
		TTL struct {
			Trails          string `yaml:"trails"`
			WeatherToday    string `yaml:"weather_today"`
			Weather         string `yaml:"weather"`
			Recommendations string `yaml:"recommendations"`
		} `yaml:"ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Enabled  *bool    `yaml:"enabled"`
			Prompts  []string `yaml:"prompts"`
			Interval string   `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	GoogleAPIKey string `yaml:"google_api_key"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml, after loading .env into the environment. Env vars
// override the files. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.GoogleAPIKey = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), sec.GoogleAPIKey)
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY required (set env or config/secrets.yaml google_api_key)")
	}
	cfg.GeminiAPIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), sec.GeminiAPIKey, cfg.GoogleAPIKey)

	cfg.ServerPort = firstNonEmpty(fc.Server.Port, "8080")
	cfg.StaticDir = firstNonEmpty(fc.Server.StaticDir, "static")
	cfg.Location = loadLocation(firstNonEmpty(fc.Server.Timezone, "Asia/Hong_Kong"))
	cfg.MaxInputLength = fc.Server.MaxInputLength
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = 500
	}
	cfg.CORSAllowedOrigins = fc.Server.CORSOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	cfg.DatasetPath = firstNonEmpty(fc.Dataset.Path, filepath.Join(cfg.StaticDir, "Hiking_Trails.json"))

	cfg.MapsAPIURL = firstNonEmpty(fc.Maps.URL, "https://maps.googleapis.com/maps/api")
	cfg.MapsTimeout = parseDurationOrZero(fc.Maps.Timeout, 10*time.Second)
	cfg.HKOAPIURL = firstNonEmpty(fc.Weather.URL, "https://data.weather.gov.hk/weatherAPI/opendata/weather.php")
	cfg.HKOTimeout = parseDurationOrZero(fc.Weather.Timeout, 10*time.Second)
	cfg.GeminiAPIURL = firstNonEmpty(fc.Gemini.URL, "https://generativelanguage.googleapis.com/v1")
	cfg.GeminiModel = firstNonEmpty(fc.Gemini.Model, "gemini-2.0-flash-001")
	cfg.GeminiTimeout = parseDurationOrZero(fc.Gemini.Timeout, 60*time.Second)

	cfg.StationTypes = fc.Stations.Types
	if fc.Stations.Types == nil {
		cfg.StationTypes = []string{"subway_station", "bus_station"}
	}
	cfg.StationRadius = fc.Stations.Radius
	if cfg.StationRadius == 0 {
		cfg.StationRadius = 2000
	}
	cfg.StationDelay = parseDurationOrZero(fc.Stations.Delay, 200*time.Millisecond)
	cfg.DistanceMemoSize = fc.Stations.MemoSize
	if cfg.DistanceMemoSize <= 0 {
		cfg.DistanceMemoSize = 4096
	}
	cfg.DistanceMemoTTL = parseDuration(fc.Stations.MemoTTL, 24*time.Hour)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, CacheBackendFile)))
	cfg.TrailCacheFile = firstNonEmpty(fc.Cache.Files.Trails, filepath.Join(cfg.StaticDir, "station_cache.json"))
	cfg.WeatherCacheFile = firstNonEmpty(fc.Cache.Files.Weather, filepath.Join(cfg.StaticDir, "weather_cache.json"))
	cfg.RecommendationCacheFile = firstNonEmpty(fc.Cache.Files.Recommendations, filepath.Join(cfg.StaticDir, "recommendation_cache.json"))
	cfg.TrailTTL = parseDuration(fc.Cache.TTL.Trails, 7*24*time.Hour)
	cfg.WeatherTodayTTL = parseDuration(fc.Cache.TTL.WeatherToday, time.Hour)
	cfg.WeatherTTL = parseDuration(fc.Cache.TTL.Weather, 12*time.Hour)
	cfg.RecommendationTTL = parseDuration(fc.Cache.TTL.Recommendations, 24*time.Hour)
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 2*time.Minute)

	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.WarmCache = true
	if fc.Cache.Warm.Enabled != nil {
		cfg.WarmCache = *fc.Cache.Warm.Enabled
	}
	cfg.WarmPrompts = fc.Cache.Warm.Prompts
	if cfg.WarmPrompts == nil {
		cfg.WarmPrompts = []string{"today"}
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 30*time.Minute)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets reads the optional secrets file. A missing file yields empty secrets.
func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// loadLocation falls back to a fixed UTC+8 zone when the tz database is missing.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("HKT", 8*3600)
	}
	return loc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	for name, d := range map[string]time.Duration{
		"maps_api.timeout":    cfg.MapsTimeout,
		"weather_api.timeout": cfg.HKOTimeout,
		"gemini_api.timeout":  cfg.GeminiTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	switch cfg.CacheBackend {
	case CacheBackendFile, CacheBackendMemory:
	case CacheBackendMemcached:
		if cfg.MemcachedAddrs == "" {
			return fmt.Errorf("cache.memcached.addrs required for memcached backend")
		}
	default:
		return fmt.Errorf("cache.backend must be file, memcached or memory, got %q", cfg.CacheBackend)
	}
	if len(cfg.StationTypes) == 0 {
		return fmt.Errorf("stations.types must list at least one place type")
	}
	if cfg.StationRadius <= 0 {
		return fmt.Errorf("stations.radius must be positive, got %d", cfg.StationRadius)
	}
	if cfg.StationDelay < 0 {
		return fmt.Errorf("stations.delay must not be negative")
	}
	return nil
}
