package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chartengine/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"BTCUSD"}, cfg.Charts.Symbols)
	assert.Equal(t, "@every 30s", cfg.Charts.RefreshCron)
	assert.Equal(t, DriverSQLite, cfg.Source.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, indicator.None, cfg.Selection())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
log_level: debug
charts:
  symbols: [BTCUSD, ETHUSD]
  timeframe: 15m
  indicator: "RSI:21"
  candle_limit: 300
redis:
  enabled: true
  addr: redis:6379
  breaker_reset: 30s
`)
	t.Setenv("CANDLE_LIMIT", "1000")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MACD_SHOW_SIGNAL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, cfg.Charts.Symbols)
	assert.Equal(t, "15m", cfg.Charts.Timeframe)
	assert.Equal(t, 1000, cfg.Charts.CandleLimit)
	assert.True(t, cfg.Charts.MACDShowSignal)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Redis.BreakerReset)
	assert.Equal(t, indicator.Selection{Kind: indicator.KindRSI, Period: 21}, cfg.Selection())
}

func TestLoad_EnvList(t *testing.T) {
	t.Setenv("CHART_SYMBOLS", "SOLUSD,ADAUSD")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSD", "ADAUSD"}, cfg.Charts.Symbols)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeYAML(t, "charts: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"http addr", func(c *Config) { c.HTTPAddr = "" }},
		{"no symbols", func(c *Config) { c.Charts.Symbols = nil }},
		{"blank symbol", func(c *Config) { c.Charts.Symbols = []string{" "} }},
		{"timeframe", func(c *Config) { c.Charts.Timeframe = "3x" }},
		{"indicator", func(c *Config) { c.Charts.Indicator = "SMA:0" }},
		{"candle limit", func(c *Config) { c.Charts.CandleLimit = 0 }},
		{"cron", func(c *Config) { c.Charts.RefreshCron = "every now and then" }},
		{"driver", func(c *Config) { c.Source.Driver = "mysql" }},
		{"postgres url", func(c *Config) { c.Source.Driver = DriverPostgres }},
		{"redis addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"breaker", func(c *Config) { c.Redis.Enabled = true; c.Redis.BreakerMaxFailures = 0 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
