package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the market service. Sensitive or
// deployment-specific values can be overridden through environment
// variables after the file is parsed.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		TickIntervalMS  int     `yaml:"tick_interval_ms"`
		TradeCooldownMS int     `yaml:"trade_cooldown_ms"`
		MaxTradeQty     int64   `yaml:"max_trade_qty"`
		ImpactScale     float64 `yaml:"impact_scale"`
		// ConfirmThreshold is consumed by presentation layers to decide
		// when a trade needs an explicit confirmation prompt.
		ConfirmThreshold decimal.Decimal `yaml:"confirm_threshold"`
	} `yaml:"market"`

	Paths struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"paths"`

	Broadcast struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"broadcast"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "marketcraft"
	cfg.Market.TickIntervalMS = 1000
	cfg.Market.TradeCooldownMS = 2000
	cfg.Market.MaxTradeQty = 10_000
	cfg.Market.ImpactScale = 0.01
	cfg.Market.ConfirmThreshold = decimal.NewFromInt(10_000)
	cfg.Broadcast.Addr = "localhost:8787"
	cfg.Logging.Level = "info"
	return cfg
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Market.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive, got %d", c.Market.TickIntervalMS)
	}
	if c.Market.TradeCooldownMS < 0 {
		return fmt.Errorf("trade cooldown must not be negative, got %d", c.Market.TradeCooldownMS)
	}
	if c.Market.MaxTradeQty <= 0 {
		return fmt.Errorf("max trade quantity must be positive, got %d", c.Market.MaxTradeQty)
	}
	if c.Market.ImpactScale <= 0 {
		return fmt.Errorf("impact scale must be positive, got %f", c.Market.ImpactScale)
	}
	if c.Broadcast.Enabled && c.Broadcast.Addr == "" {
		return fmt.Errorf("broadcast enabled but no listen address configured")
	}
	return nil
}

// TickInterval returns the simulation interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Market.TickIntervalMS) * time.Millisecond
}

// TradeCooldown returns the per-actor trade cooldown as a duration.
func (c *Config) TradeCooldown() time.Duration {
	return time.Duration(c.Market.TradeCooldownMS) * time.Millisecond
}

// overrideWithEnv applies environment overrides when present.
func overrideWithEnv(cfg *Config) {
	if dir := os.Getenv("MARKETCRAFT_DATA_DIR"); dir != "" {
		cfg.Paths.DataDir = dir
	}
	if addr := os.Getenv("MARKETCRAFT_BROADCAST_ADDR"); addr != "" {
		cfg.Broadcast.Addr = addr
	}
	if level := os.Getenv("MARKETCRAFT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
