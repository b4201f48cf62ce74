package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://places.googleapis.com/v1", cfg.Google.BaseURL)
	assert.InDelta(t, 10.0, cfg.Google.RateLimit, 0.001)
	assert.Equal(t, "https://api.hunter.io/v2", cfg.Hunter.BaseURL)
	assert.Equal(t, 70, cfg.Contact.MinConfidence)
	assert.Equal(t, 250, cfg.Contact.PauseMs)
	assert.Equal(t, 10, cfg.Automation.TimeoutSecs)
	assert.Equal(t, 168, cfg.Automation.CacheTTLHours)
	assert.Equal(t, 5, cfg.Pipeline.EnrichConcurrency)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "@hourly", cfg.Cache.SweepSchedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: leadscout.db
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  enrich_concurrency: 8
automation:
  signatures_path: tools.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadscout.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Pipeline.EnrichConcurrency)
	assert.Equal(t, "tools.yaml", cfg.Automation.SignaturesPath)
	// Defaults still apply for unset values
	assert.Equal(t, 250, cfg.Contact.PauseMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADSCOUT_STORE_DRIVER", "postgres")
	t.Setenv("LEADSCOUT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADSCOUT_SERVER_PORT", "3000")
	t.Setenv("LEADSCOUT_GOOGLE_KEY", "g-key")
	t.Setenv("LEADSCOUT_CONTACT_PAUSE_MS", "1000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "g-key", cfg.Google.Key)
	assert.Equal(t, 1000, cfg.Contact.PauseMs)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/leadscout"
	cfg.Google.Key = "g-key"
	cfg.Hunter.Key = "h-key"
	cfg.Contact.MinConfidence = 70
	cfg.Contact.PauseMs = 250
	cfg.Pipeline.EnrichConcurrency = 5
	cfg.Pipeline.MaxConcurrentRuns = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSearch_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("search"))
}

func TestValidateSearch_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Google.Key = ""
	cfg.Hunter.Key = ""

	err := cfg.Validate("search")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "google.key is required")
	assert.Contains(t, err.Error(), "hunter.key is required")
}

func TestValidateSQLiteNeedsNoURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""

	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateVerify_OnlyNeedsHunter(t *testing.T) {
	cfg := &Config{}
	cfg.Hunter.Key = "h-key"

	assert.NoError(t, cfg.Validate("verify"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.EnrichConcurrency = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich_concurrency must be between 1 and 50")

	cfg.Pipeline.EnrichConcurrency = 51
	assert.Error(t, cfg.Validate("serve"))

	cfg.Pipeline.EnrichConcurrency = 50
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Contact.MinConfidence = 101
	err = cfg.Validate("search")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_confidence")
}

func TestRetryPolicy(t *testing.T) {
	p := RetryConfig{MaxAttempts: 5, InitialBackoffMs: 200, MaxBackoffMs: 2000, Multiplier: 3.0}.Policy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 2*time.Second, p.MaxBackoff)
	assert.InDelta(t, 3.0, p.Multiplier, 0.001)
	assert.InDelta(t, 0.0, p.JitterFraction, 0.001)

	def := RetryConfig{JitterFraction: -1}.Policy()
	assert.Equal(t, 3, def.MaxAttempts)
	assert.InDelta(t, 0.25, def.JitterFraction, 0.001)
}

func TestCircuitPolicy(t *testing.T) {
	p := CircuitConfig{FailureThreshold: 7, ResetTimeoutSecs: 45}.Policy()
	assert.Equal(t, 7, p.FailureThreshold)
	assert.Equal(t, 45*time.Second, p.ResetTimeout)

	def := CircuitConfig{}.Policy()
	assert.Equal(t, 5, def.FailureThreshold)
	assert.Equal(t, 30*time.Second, def.ResetTimeout)
}
