package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "screen", cfg.Mining.Mode)
	assert.Equal(t, 30, cfg.Mining.WindowSize)
	assert.Equal(t, 0.7, cfg.Mining.Threshold)
	assert.Equal(t, []int{12, 24, 36, 48, 60}, cfg.Mining.Windows)
	assert.Equal(t, 12, cfg.Mining.MaxShift)
	assert.Greater(t, cfg.Mining.Workers, 0)
	assert.True(t, filepath.IsAbs(cfg.Paths.DataDir))
	assert.True(t, filepath.IsAbs(cfg.Paths.CacheDir))
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mining:
  mode: grid
  threshold: 0.9
  max_shift: 6
paths:
  data_dir: /srv/datasets
  cache_dir: /srv/cache
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "grid", cfg.Mining.Mode)
	assert.Equal(t, 0.9, cfg.Mining.Threshold)
	assert.Equal(t, 6, cfg.Mining.MaxShift)
	assert.Equal(t, "/srv/datasets", cfg.Paths.DataDir)

	// Fields the file does not mention keep their defaults.
	assert.Equal(t, 30, cfg.Mining.WindowSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mining:\n  threshold: 0.9\n"), 0644))

	t.Setenv("CORRMINE_MINING_THRESHOLD", "0.5")
	t.Setenv("CORRMINE_MINING_MODE", "grid")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Mining.Threshold)
	assert.Equal(t, "grid", cfg.Mining.Mode)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mining.Mode = "turbo" }},
		{"zero window", func(c *Config) { c.Mining.WindowSize = 0 }},
		{"threshold above one", func(c *Config) { c.Mining.Threshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Mining.Threshold = -0.1 }},
		{"empty windows", func(c *Config) { c.Mining.Windows = nil }},
		{"negative shift bound", func(c *Config) { c.Mining.MaxShift = -1 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"file output without path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadColumnMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.json")
	content := `{
		"temperature.csv": ["date", "temp_celsius"],
		"stock_prices.csv": ["timestamp", "closing_price"]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := LoadColumnMap(path)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, [2]string{"date", "temp_celsius"}, m["temperature.csv"])
	assert.Equal(t, [2]string{"timestamp", "closing_price"}, m["stock_prices.csv"])
}

func TestLoadColumnMapRejectsWrongArity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a.csv": ["date"]}`), 0644))

	_, err := LoadColumnMap(path)
	assert.Error(t, err)
}

func TestLoadColumnMapMissingFile(t *testing.T) {
	_, err := LoadColumnMap(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
