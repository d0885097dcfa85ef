package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wellcheck/internal/domain"
	"wellcheck/internal/jobs"
	"wellcheck/internal/thresholds"
	"wellcheck/internal/window"
)

// Config models wellcheck.yml.
type Config struct {
	Timezone      string           `yaml:"timezone"`
	Thresholds    ThresholdsConfig `yaml:"thresholds"`
	Jobs          JobsConfig       `yaml:"jobs"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Watchlist struct {
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"watchlist"`
	Reports struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"reports"`
}

// ThresholdsConfig seeds the first threshold version of a fresh database.
// Later edits go through the API and are stored in the database.
type ThresholdsConfig struct {
	Critical           domain.Range `yaml:"critical"`
	Negative           domain.Range `yaml:"negative"`
	Neutral            domain.Range `yaml:"neutral"`
	Positive           domain.Range `yaml:"positive"`
	WatchlistTrackDays int          `yaml:"watchlist_track_days"`
}

type JobsConfig struct {
	MaxAttempts int            `yaml:"max_attempts"`
	BaseDelay   time.Duration  `yaml:"base_delay"`
	KeepFailed  int            `yaml:"keep_failed"`
	DedupTTL    time.Duration  `yaml:"dedup_ttl"`
	Concurrency map[string]int `yaml:"concurrency"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with wc init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := window.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config.timezone: %w", err)
	}
	if err := thresholds.Validate(c.ThresholdConfig()); err != nil {
		return fmt.Errorf("config.thresholds: %w", err)
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("config.jobs.max_attempts must be at least 1")
	}
	if c.Jobs.BaseDelay <= 0 {
		return fmt.Errorf("config.jobs.base_delay must be positive")
	}
	if c.Jobs.KeepFailed < 0 {
		return fmt.Errorf("config.jobs.keep_failed must not be negative")
	}
	known := map[string]bool{}
	for _, name := range jobs.QueueNames() {
		known[name] = true
	}
	for name, n := range c.Jobs.Concurrency {
		if !known[name] {
			return fmt.Errorf("config.jobs.concurrency references unknown queue %s", name)
		}
		if n < 1 {
			return fmt.Errorf("config.jobs.concurrency.%s must be at least 1", name)
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if c.Watchlist.SweepInterval <= 0 {
		return fmt.Errorf("config.watchlist.sweep_interval must be positive")
	}
	if c.Reports.CacheTTL < 0 {
		return fmt.Errorf("config.reports.cache_ttl must not be negative")
	}
	return nil
}

// ThresholdConfig converts the seed section to a domain config.
func (c *Config) ThresholdConfig() domain.ThresholdConfig {
	return domain.ThresholdConfig{
		Critical:           c.Thresholds.Critical,
		Negative:           c.Thresholds.Negative,
		Neutral:            c.Thresholds.Neutral,
		Positive:           c.Thresholds.Positive,
		WatchlistTrackDays: c.Thresholds.WatchlistTrackDays,
	}
}

// JobPolicy is the retry policy shared by every queue.
func (c *Config) JobPolicy() jobs.Policy {
	p := jobs.DefaultPolicy()
	p.MaxAttempts = c.Jobs.MaxAttempts
	p.BaseDelay = c.Jobs.BaseDelay
	p.KeepFailed = c.Jobs.KeepFailed
	if c.Jobs.DedupTTL > 0 {
		p.DedupTTL = c.Jobs.DedupTTL
	}
	return p
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "wellcheck.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `timezone: UTC

thresholds:
  critical: {min: -1.0, max: -0.8}
  negative: {min: -0.8, max: -0.2}
  neutral:  {min: -0.2, max: 0.2}
  positive: {min: 0.2, max: 1.0}
  watchlist_track_days: 14

jobs:
  max_attempts: 3
  base_delay: 1s
  keep_failed: 1000
  dedup_ttl: 24h
  concurrency:
    notifications: 2
    analysis: 1
    report-cache: 1

notifications:
  webhooks: []

server:
  addr: 127.0.0.1:8080

watchlist:
  sweep_interval: 15m

reports:
  cache_ttl: 1h
`
