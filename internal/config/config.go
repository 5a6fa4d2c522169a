// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML file of pool defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/delvtech/agent0-sub002/internal/model"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// PoolDefaults fill in the parameters a pool creation request omits.
type PoolDefaults struct {
	PositionDurationDays int             `yaml:"position_duration_days"`
	CurveFee             decimal.Decimal `yaml:"curve_fee_multiple"`
	FlatFee              decimal.Decimal `yaml:"flat_fee_multiple"`
	GovernanceFee        decimal.Decimal `yaml:"governance_fee_multiple"`
	InitSharePrice       decimal.Decimal `yaml:"init_share_price"`
	Numeric              string          `yaml:"numeric"`
	Model                string          `yaml:"model"`
}

// Config holds all service configuration.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	RedisCacheTTL time.Duration
	LogLevel      string
	LogFormat     string
	PoolConfig    string

	// Exposure limits in bonds. Zero disables a limit.
	MaxLongPerPool  decimal.Decimal
	MaxShortPerPool decimal.Decimal
	MaxPerAsset     decimal.Decimal

	Pools PoolDefaults
}

// file is the YAML layout of POOL_CONFIG.
type file struct {
	PoolDefaults *PoolDefaults `yaml:"pool_defaults"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:          "8080",
		RedisCacheTTL: 30 * time.Second,
		LogLevel:      "info",
		LogFormat:     "json",
		Pools: PoolDefaults{
			PositionDurationDays: 365,
			CurveFee:             decimal.RequireFromString("0.1"),
			FlatFee:              decimal.RequireFromString("0.05"),
			GovernanceFee:        decimal.RequireFromString("0.1"),
			InitSharePrice:       decimal.NewFromInt(1),
			Numeric:              model.NumericFloat,
			Model:                model.ModelHyperdrive,
		},
	}
}

// Load reads .env (if present), then POOL_CONFIG (if set), then the
// environment, and validates the result. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on OS environment variables")
	}

	cfg := Default()
	if path := os.Getenv("POOL_CONFIG"); path != "" {
		if err := cfg.loadPoolFile(path); err != nil {
			return nil, err
		}
		cfg.PoolConfig = path
	}
	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("port", cfg.Port).
		Bool("postgres", cfg.DatabaseURL != "").
		Bool("redis", cfg.RedisURL != "").
		Str("numeric", cfg.Pools.Numeric).
		Str("model", cfg.Pools.Model).
		Msg("configuration loaded")
	return cfg, nil
}

func (c *Config) loadPoolFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pool config: %w", err)
	}
	f := file{PoolDefaults: &c.Pools}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse pool config %s: %w", path, err)
	}
	return nil
}

func (c *Config) overrideWithEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.Pools.Numeric, "POOL_NUMERIC")
	setString(&c.Pools.Model, "POOL_MODEL")

	if v, ok := os.LookupEnv("REDIS_CACHE_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: REDIS_CACHE_TTL must be a duration, got %q", ErrInvalidConfig, v)
		}
		c.RedisCacheTTL = ttl
	}
	if v, ok := os.LookupEnv("POOL_DURATION_DAYS"); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: POOL_DURATION_DAYS must be an integer, got %q", ErrInvalidConfig, v)
		}
		c.Pools.PositionDurationDays = days
	}

	for _, d := range []struct {
		key string
		dst *decimal.Decimal
	}{
		{"MAX_LONG_PER_POOL", &c.MaxLongPerPool},
		{"MAX_SHORT_PER_POOL", &c.MaxShortPerPool},
		{"MAX_PER_ASSET", &c.MaxPerAsset},
		{"POOL_CURVE_FEE", &c.Pools.CurveFee},
		{"POOL_FLAT_FEE", &c.Pools.FlatFee},
		{"POOL_GOVERNANCE_FEE", &c.Pools.GovernanceFee},
	} {
		if err := setDecimal(d.dst, d.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}
	if c.RedisCacheTTL <= 0 {
		return fmt.Errorf("%w: redis cache ttl must be positive", ErrInvalidConfig)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}
	for name, v := range map[string]decimal.Decimal{
		"max_long_per_pool":  c.MaxLongPerPool,
		"max_short_per_pool": c.MaxShortPerPool,
		"max_per_asset":      c.MaxPerAsset,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return c.Pools.Validate()
}

// Validate checks that the defaults describe a valid pool.
func (p PoolDefaults) Validate() error {
	if p.PositionDurationDays <= 0 {
		return fmt.Errorf("%w: position duration must be positive, got %d", ErrInvalidConfig, p.PositionDurationDays)
	}
	one := decimal.NewFromInt(1)
	for name, v := range map[string]decimal.Decimal{
		"curve_fee_multiple":      p.CurveFee,
		"flat_fee_multiple":       p.FlatFee,
		"governance_fee_multiple": p.GovernanceFee,
	} {
		if v.IsNegative() || v.GreaterThan(one) {
			return fmt.Errorf("%w: %s must be in [0,1], got %s", ErrInvalidConfig, name, v)
		}
	}
	if p.InitSharePrice.LessThan(one) {
		return fmt.Errorf("%w: init share price must be at least 1, got %s", ErrInvalidConfig, p.InitSharePrice)
	}
	if p.Numeric != model.NumericFloat && p.Numeric != model.NumericFixed {
		return fmt.Errorf("%w: numeric %q", ErrInvalidConfig, p.Numeric)
	}
	if p.Model != model.ModelHyperdrive && p.Model != model.ModelYieldSpace {
		return fmt.Errorf("%w: model %q", ErrInvalidConfig, p.Model)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDecimal(dst *decimal.Decimal, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("%w: %s must be a decimal, got %q", ErrInvalidConfig, key, v)
	}
	*dst = d
	return nil
}
