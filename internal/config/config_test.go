package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 14, cfg.Thresholds.WatchlistTrackDays)
	assert.Equal(t, 15*time.Minute, cfg.Watchlist.SweepInterval)

	p := cfg.JobPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 1000, p.KeepFailed)
	assert.Equal(t, 24*time.Hour, p.DedupTTL)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
timezone: America/New_York
notifications:
  webhooks:
    - url: https://hooks.example.com/wellcheck
      events: [critical-alert]
`))
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	require.Len(t, cfg.Notifications.Webhooks, 1)
	assert.True(t, cfg.Notifications.Webhooks[0].Active())
	assert.Equal(t, -0.8, cfg.Thresholds.Critical.Max, "unset sections keep defaults")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"timezone":      "timezone: Nowhere/City\n",
		"gap":           "thresholds:\n  neutral: {min: -0.1, max: 0.2}\n",
		"attempts":      "jobs:\n  max_attempts: 0\n",
		"unknown queue": "jobs:\n  concurrency:\n    images: 2\n",
		"webhook url":   "notifications:\n  webhooks:\n    - url: ftp://x\n",
		"sweep":         "watchlist:\n  sweep_interval: 0s\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalWithoutFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "wellcheck.yml"), []byte("server:\n  addr: :9090\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestDisabledWebhookIsInactive(t *testing.T) {
	off := false
	assert.False(t, WebhookConfig{URL: "https://x", Enabled: &off}.Active())
	assert.False(t, WebhookConfig{}.Active())
}
