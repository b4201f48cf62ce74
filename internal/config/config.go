package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Hunter     HunterConfig     `yaml:"hunter" mapstructure:"hunter"`
	Contact    ContactConfig    `yaml:"contact" mapstructure:"contact"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GoogleConfig holds business directory API settings.
type GoogleConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	GeocodeURL string  `yaml:"geocode_url" mapstructure:"geocode_url"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// HunterConfig holds contact enrichment API settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ContactConfig tunes email lookups.
type ContactConfig struct {
	MinConfidence int `yaml:"min_confidence" mapstructure:"min_confidence"`
	PauseMs       int `yaml:"pause_ms" mapstructure:"pause_ms"`
}

// AutomationConfig tunes website scans.
type AutomationConfig struct {
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLHours  int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	SignaturesPath string `yaml:"signatures_path" mapstructure:"signatures_path"`
}

// PipelineConfig bounds run and enrichment concurrency.
type PipelineConfig struct {
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
}

// RetryConfig configures retries for directory calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the contact provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// CacheConfig configures detection cache maintenance.
type CacheConfig struct {
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`
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
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.geocode_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("contact.min_confidence", 70)
	v.SetDefault("contact.pause_ms", 250)
	v.SetDefault("automation.timeout_secs", 10)
	v.SetDefault("automation.cache_ttl_hours", 7*24)
	v.SetDefault("pipeline.enrich_concurrency", 5)
	v.SetDefault("pipeline.max_concurrent_runs", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cache.sweep_schedule", "@hourly")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode needs. Modes: "search",
// "serve", "verify", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	storeOK := func() {
		switch c.Store.Driver {
		case "postgres":
			require(c.Store.DatabaseURL != "", "store.database_url is required")
		case "sqlite":
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
	}
	pipelineOK := func() {
		require(c.Google.Key != "", "google.key is required")
		require(c.Hunter.Key != "", "hunter.key is required")
		require(c.Pipeline.EnrichConcurrency >= 1 && c.Pipeline.EnrichConcurrency <= 50,
			"pipeline.enrich_concurrency must be between 1 and 50")
		require(c.Contact.MinConfidence >= 0 && c.Contact.MinConfidence <= 100,
			"contact.min_confidence must be between 0 and 100")
		require(c.Contact.PauseMs >= 0, "contact.pause_ms must be >= 0")
	}

	switch mode {
	case "search":
		storeOK()
		pipelineOK()
	case "serve":
		storeOK()
		pipelineOK()
		require(c.Server.Port > 0, "server.port must be > 0")
		require(c.Pipeline.MaxConcurrentRuns >= 1, "pipeline.max_concurrent_runs must be >= 1")
	case "verify":
		require(c.Hunter.Key != "", "hunter.key is required")
	case "migrate":
		storeOK()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
