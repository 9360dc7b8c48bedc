package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "./offer-goat.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AutoWinner.Interval)
	assert.InDelta(t, 0.03, cfg.Defaults().BaselineRate, 1e-12)
	assert.Equal(t, 50, cfg.Defaults().DailyImpressions)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "og.yaml")
	err := os.WriteFile(path, []byte(`
db_path: /var/lib/og/og.db
port: 9090
log_mode: prod
planning:
  baseline_rate: 0.05
auto_winner:
  interval: 1h
  concurrency: 8
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/og/og.db", cfg.DBPath)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.InDelta(t, 0.05, cfg.Planning.BaselineRate, 1e-12)
	assert.InDelta(t, 0.05, cfg.Planning.SignificanceLevel, 1e-12, "untouched keys keep defaults")
	assert.Equal(t, time.Hour, cfg.AutoWinner.Interval)
	assert.Equal(t, 8, cfg.AutoWinner.Concurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "og.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0644))

	t.Setenv("OG_PORT", "7070")
	t.Setenv("OG_ADMIN_TOKEN", "abc123")
	t.Setenv("OG_AUTO_WINNER_INTERVAL", "0s")
	t.Setenv("OG_LOG_HASH_SALT", "pepper")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "abc123", cfg.AdminToken)
	assert.Zero(t, cfg.AutoWinner.Interval)
	assert.Equal(t, "pepper", cfg.LogHashSalt)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port", map[string]string{"OG_PORT": "eighty"}},
		{"interval", map[string]string{"OG_AUTO_WINNER_INTERVAL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"unknown log mode", func(c *Config) { c.LogMode = "loud" }},
		{"baseline at 1", func(c *Config) { c.Planning.BaselineRate = 1 }},
		{"alpha at 0", func(c *Config) { c.Planning.SignificanceLevel = 0 }},
		{"no daily traffic", func(c *Config) { c.Planning.DailyImpressions = 0 }},
		{"negative interval", func(c *Config) { c.AutoWinner.Interval = -time.Second }},
		{"negative concurrency", func(c *Config) { c.AutoWinner.Concurrency = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
