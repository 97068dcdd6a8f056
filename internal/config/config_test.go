package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 1995, cfg.Harvest.StartYear)
	assert.Equal(t, 2021, cfg.Harvest.EndYear)
	assert.Equal(t, "csv", cfg.Storage.Type)
	assert.Equal(t, "./log", cfg.Logging.Dir)
	require.NotNil(t, cfg.Harvest.Name.Exclude)
	assert.Equal(t, "img", cfg.Harvest.Name.Exclude.Tag)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"reversed years", func(c *Config) { c.Harvest.StartYear, c.Harvest.EndYear = 2010, 2000 }},
		{"zero year", func(c *Config) { c.Harvest.StartYear = 0 }},
		{"bad base url", func(c *Config) { c.Harvest.BaseURL = "ftp://example.com" }},
		{"bad on_error", func(c *Config) { c.Harvest.OnError = "retry" }},
		{"bad rank pattern", func(c *Config) { c.Harvest.Rank.Pattern = "(" }},
		{"exclude without attr", func(c *Config) { c.Harvest.Name.Exclude.Attr = "" }},
		{"bad fetcher", func(c *Config) { c.Fetcher.Type = "curl" }},
		{"negative retries", func(c *Config) { c.Fetcher.MaxRetries = -1 }},
		{"bad storage", func(c *Config) { c.Storage.Type = "xlsx" }},
		{"empty output", func(c *Config) { c.Storage.OutputPath = "" }},
		{"sqlite without path", func(c *Config) { c.Storage.SQLite.Enabled = true; c.Storage.SQLite.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"file log without dir", func(c *Config) { c.Logging.Output = "file"; c.Logging.Dir = "" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxharvest.yaml")
	content := `
harvest:
  start_year: 2000
  end_year: 2002
  on_error: abort
  politeness_delay: 250ms
fetcher:
  max_retries: 1
storage:
  type: jsonl
  output_path: out/rows.jsonl
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 2000, cfg.Harvest.StartYear)
	assert.Equal(t, 2002, cfg.Harvest.EndYear)
	assert.Equal(t, "abort", cfg.Harvest.OnError)
	assert.Equal(t, 250*time.Millisecond, cfg.Harvest.PolitenessDelay)
	assert.Equal(t, 1, cfg.Fetcher.MaxRetries)
	assert.Equal(t, "jsonl", cfg.Storage.Type)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultBaseURL, cfg.Harvest.BaseURL)
	assert.Equal(t, DefaultRankPattern, cfg.Harvest.Rank.Pattern)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BOXHARVEST_HARVEST_END_YEAR", "1999")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1999, cfg.Harvest.EndYear)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
