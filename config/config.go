package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/model"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Candle source drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	HTTPAddr    string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`

	Charts struct {
		Symbols        []string `yaml:"symbols" envconfig:"CHART_SYMBOLS"`
		Timeframe      string   `yaml:"timeframe" envconfig:"CHART_TIMEFRAME"`
		Indicator      string   `yaml:"indicator" envconfig:"CHART_INDICATOR"`
		CandleLimit    int      `yaml:"candle_limit" envconfig:"CANDLE_LIMIT"`
		RefreshCron    string   `yaml:"refresh_cron" envconfig:"REFRESH_CRON"`
		MACDShowSignal bool     `yaml:"macd_show_signal" envconfig:"MACD_SHOW_SIGNAL"`
	} `yaml:"charts"`

	Source struct {
		Driver      string `yaml:"driver" envconfig:"SOURCE_DRIVER"`
		SQLitePath  string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
		PostgresURL string `yaml:"postgres_url" envconfig:"POSTGRES_URL"`
	} `yaml:"source"`

	Redis struct {
		Enabled            bool          `yaml:"enabled" envconfig:"REDIS_ENABLED"`
		Addr               string        `yaml:"addr" envconfig:"REDIS_ADDR"`
		Password           string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
		DB                 int           `yaml:"db" envconfig:"REDIS_DB"`
		SelectChannel      string        `yaml:"select_channel" envconfig:"REDIS_SELECT_CHANNEL"`
		BreakerMaxFailures int           `yaml:"breaker_max_failures" envconfig:"REDIS_BREAKER_MAX_FAILURES"`
		BreakerReset       time.Duration `yaml:"breaker_reset" envconfig:"REDIS_BREAKER_RESET"`
	} `yaml:"redis"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		LogLevel:    "info",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
	}
	cfg.Charts.Symbols = []string{"BTCUSD"}
	cfg.Charts.Timeframe = "1h"
	cfg.Charts.Indicator = "NONE"
	cfg.Charts.CandleLimit = 500
	cfg.Charts.RefreshCron = "@every 30s"
	cfg.Source.Driver = DriverSQLite
	cfg.Source.SQLitePath = "data/candles.db"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.SelectChannel = "cmd:indicator"
	cfg.Redis.BreakerMaxFailures = 5
	cfg.Redis.BreakerReset = 10 * time.Second
	return cfg
}

// Load builds the configuration in layers: defaults, the YAML file at path
// (a missing file is fine), a .env file if present, then environment
// variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if len(c.Charts.Symbols) == 0 {
		return errors.New("charts.symbols must not be empty")
	}
	for _, s := range c.Charts.Symbols {
		if strings.TrimSpace(s) == "" {
			return errors.New("charts.symbols contains an empty symbol")
		}
	}
	if _, err := model.ParseTF(c.Charts.Timeframe); err != nil {
		return fmt.Errorf("charts.timeframe: %w", err)
	}
	if _, err := indicator.ParseSelection(c.Charts.Indicator); err != nil {
		return fmt.Errorf("charts.indicator: %w", err)
	}
	if c.Charts.CandleLimit <= 0 {
		return fmt.Errorf("charts.candle_limit must be positive, got %d", c.Charts.CandleLimit)
	}
	if c.Charts.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.Charts.RefreshCron); err != nil {
			return fmt.Errorf("charts.refresh_cron: %w", err)
		}
	}

	switch c.Source.Driver {
	case DriverSQLite:
		if c.Source.SQLitePath == "" {
			return errors.New("source.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Source.PostgresURL == "" {
			return errors.New("source.postgres_url is required for the postgres driver")
		}
	case "":
	default:
		return fmt.Errorf("source.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Source.Driver)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required when redis is enabled")
		}
		if c.Redis.BreakerMaxFailures <= 0 {
			return errors.New("redis.breaker_max_failures must be positive")
		}
		if c.Redis.BreakerReset <= 0 {
			return errors.New("redis.breaker_reset must be positive")
		}
	}
	return nil
}

// Selection returns the parsed default indicator.
func (c *Config) Selection() indicator.Selection {
	sel, err := indicator.ParseSelection(c.Charts.Indicator)
	if err != nil {
		return indicator.None
	}
	return sel
}
