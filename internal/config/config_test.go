package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://greyhoundbet.racingpost.com/", cfg.Crawl.BaseURL)
	require.Equal(t, 8, cfg.Crawl.CacheBustEvery)
	require.Equal(t, 6, cfg.Crawl.DedupWindow)
	require.InDelta(t, 0.5, cfg.Crawl.OverlapThreshold, 1e-9)
	require.Equal(t, 8*time.Second, cfg.Crawl.AggressiveSettle)
	require.Equal(t, 2*time.Second, cfg.Crawl.LightSettle)
	require.Equal(t, 12*time.Second, cfg.Crawl.HydrationWait)

	require.Equal(t, 3, cfg.Stats.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.Stats.BaseDelay)
	require.Equal(t, 10*time.Second, cfg.Stats.MaxDelay)
	require.InDelta(t, 2.0, cfg.Stats.BackoffFactor, 1e-9)
	require.Equal(t, 2, cfg.Stats.Concurrency)

	require.True(t, cfg.Browser.Headless)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("crawl:\n  cache_bust_every: 4\nstats:\n  concurrency: 1\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Crawl.CacheBustEvery)
	require.Equal(t, 1, cfg.Stats.Concurrency)
	// untouched defaults survive
	require.Equal(t, 6, cfg.Crawl.DedupWindow)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty crawl base url", func(c *Config) { c.Crawl.BaseURL = "" }},
		{"zero dedup window", func(c *Config) { c.Crawl.DedupWindow = 0 }},
		{"overlap threshold above one", func(c *Config) { c.Crawl.OverlapThreshold = 1.5 }},
		{"zero max attempts", func(c *Config) { c.Stats.MaxAttempts = 0 }},
		{"backoff factor below one", func(c *Config) { c.Stats.BackoffFactor = 0.5 }},
		{"zero concurrency", func(c *Config) { c.Stats.Concurrency = 0 }},
		{"zero nav timeout", func(c *Config) { c.Browser.NavTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
