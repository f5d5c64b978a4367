package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-console/internal/maptile"
	"github.com/sells-group/valuation-console/internal/property"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:10000/predict", cfg.Valuation.Endpoint)
	assert.Equal(t, 30, cfg.Valuation.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Valuation.RateLimitRPS, 0.001)
	assert.Equal(t, 1, cfg.Valuation.Retry.MaxAttempts)
	assert.Zero(t, cfg.Valuation.Circuit.FailureThreshold, "circuit breaker is opt-in")
	assert.Equal(t, 30, cfg.Valuation.Circuit.ResetTimeoutSecs)
	assert.Equal(t, maptile.DefaultTemplate, cfg.Map.TileURL)
	assert.Equal(t, "OpenStreetMap", cfg.Map.Attribution)
	assert.Equal(t, 12, cfg.Map.Zoom)
	assert.Equal(t, 512, cfg.Map.CacheEntries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, property.DefaultRegions().All(), cfg.Regions().All())
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
valuation:
  endpoint: https://titan.example.com/predict
  retry:
    max_attempts: 3
map:
  zoom: 15
property:
  regions:
    - name: Region_0
      label: Inner City
    - name: Region_7
      label: Bayside
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://titan.example.com/predict", cfg.Valuation.Endpoint)
	assert.Equal(t, 3, cfg.Valuation.Retry.MaxAttempts)
	assert.Equal(t, 15, cfg.Map.Zoom)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Valuation.TimeoutSecs)

	regions := cfg.Regions()
	require.Len(t, regions.All(), 2)
	assert.Equal(t, "Bayside", regions.Label("Region_7"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
valuation:
  endpoint: https://file.example.com/predict
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("VALUATION_VALUATION_ENDPOINT", "https://env.example.com/predict")
	t.Setenv("VALUATION_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/predict", cfg.Valuation.Endpoint)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("valuation: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func validDefaults() *Config {
	return &Config{
		Valuation: ValuationConfig{Endpoint: "http://localhost/predict", TimeoutSecs: 30},
		Map:       MapConfig{TileURL: maptile.DefaultTemplate, Zoom: 12},
		Server:    ServerConfig{Port: 8080},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "console_ok", mode: "console"},
		{name: "value_ok", mode: "value"},
		{name: "unknown_mode", mode: "batch", wantErr: "unknown mode"},
		{name: "no_endpoint", mode: "console", mutate: func(c *Config) { c.Valuation.Endpoint = " " }, wantErr: "valuation.endpoint is required"},
		{name: "no_timeout", mode: "console", mutate: func(c *Config) { c.Valuation.TimeoutSecs = 0 }, wantErr: "timeout_secs"},
		{name: "bad_template", mode: "console", mutate: func(c *Config) { c.Map.TileURL = "https://tiles/{z}.png" }, wantErr: "map.tile_url"},
		{name: "bad_zoom", mode: "console", mutate: func(c *Config) { c.Map.Zoom = 25 }, wantErr: "map.zoom"},
		{name: "port_ignored_for_console", mode: "console", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "bad_port_serve", mode: "serve", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
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
