// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrowserConfig controls the headless browser session.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	WindowWidth    int           `mapstructure:"window_width"`
	WindowHeight   int           `mapstructure:"window_height"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	ReadySelector  string        `mapstructure:"ready_selector"`
	DisableImages  bool          `mapstructure:"disable_images"`
	DisablePlugins bool          `mapstructure:"disable_plugins"`
}

// CrawlConfig governs race-card crawl behavior against the betting SPA.
type CrawlConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	CacheBustEvery   int           `mapstructure:"cache_bust_every"`
	FreshURLEvery    int           `mapstructure:"fresh_url_every"`
	AggressiveSettle time.Duration `mapstructure:"aggressive_settle"`
	LightSettle      time.Duration `mapstructure:"light_settle"`
	StaleRetryWait   time.Duration `mapstructure:"stale_retry_wait"`
	DedupWindow      int           `mapstructure:"dedup_window"`
	OverlapThreshold float64       `mapstructure:"overlap_threshold"`
	HydrationWait    time.Duration `mapstructure:"hydration_wait"`
	CardSelector     string        `mapstructure:"card_selector"`
	ResultsSelector  string        `mapstructure:"results_selector"`
}

// StatsConfig governs the per-dog statistics fetcher.
type StatsConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	DelayGrowth   float64       `mapstructure:"delay_growth"`
	Concurrency   int           `mapstructure:"concurrency"`
}

// OutputConfig sets where tabular outputs land.
type OutputConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	RawDir       string `mapstructure:"raw_dir"`
	ResultsDir   string `mapstructure:"results_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	SQLitePath   string `mapstructure:"sqlite_path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GREYHOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.nav_timeout", "25s")
	v.SetDefault("browser.ready_timeout", "3s")
	v.SetDefault("browser.ready_selector", "#sortContainer")
	v.SetDefault("browser.disable_images", true)
	v.SetDefault("browser.disable_plugins", true)

	v.SetDefault("crawl.base_url", "https://greyhoundbet.racingpost.com/")
	v.SetDefault("crawl.cache_bust_every", 8)
	v.SetDefault("crawl.fresh_url_every", 5)
	v.SetDefault("crawl.aggressive_settle", "8s")
	v.SetDefault("crawl.light_settle", "2s")
	v.SetDefault("crawl.stale_retry_wait", "5s")
	v.SetDefault("crawl.dedup_window", 6)
	v.SetDefault("crawl.overlap_threshold", 0.5)
	v.SetDefault("crawl.hydration_wait", "12s")
	v.SetDefault("crawl.card_selector", "#sortContainer")
	v.SetDefault("crawl.results_selector", "#results-race-view")

	v.SetDefault("stats.base_url", "https://greyhoundstats.co.uk/complete_runner_stats.php")
	v.SetDefault("stats.timeout", "10s")
	v.SetDefault("stats.base_delay", "2s")
	v.SetDefault("stats.max_delay", "10s")
	v.SetDefault("stats.max_attempts", 3)
	v.SetDefault("stats.backoff_factor", 2.0)
	v.SetDefault("stats.delay_growth", 1.5)
	v.SetDefault("stats.concurrency", 2)

	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.raw_dir", "data/raw")
	v.SetDefault("output.results_dir", "data/raw/results")
	v.SetDefault("output.processed_dir", "data/processed")
	v.SetDefault("output.sqlite_path", "data/greyhound.db")

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.BaseURL == "" {
		return fmt.Errorf("crawl.base_url must be set")
	}
	if c.Crawl.DedupWindow <= 0 {
		return fmt.Errorf("crawl.dedup_window must be > 0")
	}
	if c.Crawl.OverlapThreshold <= 0 || c.Crawl.OverlapThreshold > 1 {
		return fmt.Errorf("crawl.overlap_threshold must be in (0, 1]")
	}
	if c.Stats.BaseURL == "" {
		return fmt.Errorf("stats.base_url must be set")
	}
	if c.Stats.MaxAttempts <= 0 {
		return fmt.Errorf("stats.max_attempts must be > 0")
	}
	if c.Stats.BackoffFactor < 1 {
		return fmt.Errorf("stats.backoff_factor must be >= 1")
	}
	if c.Stats.Concurrency <= 0 {
		return fmt.Errorf("stats.concurrency must be > 0")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	return nil
}
