package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/valuation-console/internal/maptile"
	"github.com/sells-group/valuation-console/internal/property"
)

// Config holds the full application configuration.
type Config struct {
	Valuation ValuationConfig `yaml:"valuation" mapstructure:"valuation"`
	Map       MapConfig       `yaml:"map" mapstructure:"map"`
	Property  PropertyConfig  `yaml:"property" mapstructure:"property"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ValuationConfig configures the valuation service client.
type ValuationConfig struct {
	Endpoint     string        `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs  int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	Retry        RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit      CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig controls automatic retries. One attempt means none.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// CircuitConfig controls the circuit breaker in front of the service. A
// zero FailureThreshold leaves the breaker off.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MapConfig configures the map backdrop and viewport.
type MapConfig struct {
	TileURL      string `yaml:"tile_url" mapstructure:"tile_url"`
	Attribution  string `yaml:"attribution" mapstructure:"attribution"`
	Zoom         int    `yaml:"zoom" mapstructure:"zoom"`
	CacheEntries int    `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMins int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// PropertyConfig configures the property form.
type PropertyConfig struct {
	Regions []property.RegionInfo `yaml:"regions" mapstructure:"regions"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("VALUATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("valuation.endpoint", "http://127.0.0.1:10000/predict")
	v.SetDefault("valuation.timeout_secs", 30)
	v.SetDefault("valuation.rate_limit_rps", 5)
	v.SetDefault("valuation.retry.max_attempts", 1)
	v.SetDefault("valuation.circuit.failure_threshold", 0)
	v.SetDefault("valuation.circuit.reset_timeout_secs", 30)
	v.SetDefault("map.tile_url", maptile.DefaultTemplate)
	v.SetDefault("map.attribution", "OpenStreetMap")
	v.SetDefault("map.zoom", 12)
	v.SetDefault("map.cache_entries", 512)
	v.SetDefault("map.cache_ttl_mins", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

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

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "console",
// "value" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "console", "value", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if strings.TrimSpace(c.Valuation.Endpoint) == "" {
		problems = append(problems, "valuation.endpoint is required")
	}
	if c.Valuation.TimeoutSecs <= 0 {
		problems = append(problems, "valuation.timeout_secs must be > 0")
	}
	if c.Valuation.RateLimitRPS < 0 {
		problems = append(problems, "valuation.rate_limit_rps must be >= 0")
	}
	if _, err := maptile.ParseTemplate(c.Map.TileURL); err != nil {
		problems = append(problems, "map.tile_url must contain {z}, {x} and {y}")
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > maptile.MaxZoom {
		problems = append(problems, "map.zoom must be between 0 and 19")
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be > 0 and <= 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Regions returns the configured region set, or the defaults.
func (c *Config) Regions() *property.RegionSet {
	return property.NewRegionSet(c.Property.Regions)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	// Interactive output owns stdout.
	zapCfg.OutputPaths = []string{"stderr"}

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
