package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	Routing  RoutingConfig  `yaml:"routing" mapstructure:"routing"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Image    ImageConfig    `yaml:"image" mapstructure:"image"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	// PolylinePrecision is the provider's encoded-polyline precision (5 or 6).
	PolylinePrecision int `yaml:"polyline_precision" mapstructure:"polyline_precision"`
}

// GeocoderConfig selects and configures the geocoding provider.
type GeocoderConfig struct {
	Provider            string  `yaml:"provider" mapstructure:"provider"` // "nominatim" or "google"
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey              string  `yaml:"api_key" mapstructure:"api_key"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// FallbackProvider names a second provider tried when the primary
	// cannot resolve an address. Empty disables the cascade.
	FallbackProvider string `yaml:"fallback_provider" mapstructure:"fallback_provider"`
}

// RoutingConfig configures the routing provider.
type RoutingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Profile string `yaml:"profile" mapstructure:"profile"` // e.g. "driving", "walking"
	PerLeg  bool   `yaml:"per_leg" mapstructure:"per_leg"` // one request per consecutive pair
}

// HTTPConfig holds the shared HTTP client behavior for provider calls.
type HTTPConfig struct {
	TimeoutMS            int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RetryMax             int `yaml:"retry_max" mapstructure:"retry_max"`
	MinRequestIntervalMS int `yaml:"min_request_interval_ms" mapstructure:"min_request_interval_ms"`
}

// Timeout returns the per-attempt HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// MinRequestInterval returns the minimum spacing between provider requests.
func (c HTTPConfig) MinRequestInterval() time.Duration {
	return time.Duration(c.MinRequestIntervalMS) * time.Millisecond
}

// CacheConfig configures the persistent geocode cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the run-history store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MapConfig configures the interactive map output.
type MapConfig struct {
	TileURL   string `yaml:"tile_url" mapstructure:"tile_url"`
	StylePath string `yaml:"style_path" mapstructure:"style_path"` // optional YAML style sheet
}

// ImageConfig configures the summary image output.
type ImageConfig struct {
	Width  int `yaml:"width" mapstructure:"width"`
	Height int `yaml:"height" mapstructure:"height"`
}

// OutputConfig configures the archive output.
type OutputConfig struct {
	// Path is the directory archives are written to when no explicit
	// output file is given.
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP serve command.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROUTEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	// geocoder.base_url has no default; each provider falls back to its
	// own public endpoint when unset.
	v.SetDefault("geocoder.provider", "nominatim")
	v.SetDefault("geocoder.confidence_threshold", 0.2)
	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.per_leg", false)
	v.SetDefault("http.timeout_ms", 15000)
	v.SetDefault("http.retry_max", 3)
	v.SetDefault("http.min_request_interval_ms", 1100)
	v.SetDefault("cache.path", "geocache.jsonl")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "routeplan.db")
	v.SetDefault("map.tile_url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("image.width", 800)
	v.SetDefault("image.height", 418)
	v.SetDefault("output.path", ".")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("polyline_precision", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.PolylinePrecision != 5 && cfg.PolylinePrecision != 6 {
		return nil, eris.Errorf("config: polyline_precision must be 5 or 6, got %d", cfg.PolylinePrecision)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
