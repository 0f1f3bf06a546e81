// Package config loads Tunegate configuration with koanf, layering
// environment variables over an optional YAML file over built-in defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tunegate/tunegate/types"
)

// EnvPrefix is stripped from environment variables before mapping,
// e.g. TUNEGATE_PRICING_MIN_CHARGE -> pricing.min_charge.
const EnvPrefix = "TUNEGATE_"

// Config holds all tunable settings. Monetary fields are expressed in
// major units of the configured currency (0.001 = a tenth of a cent).
type Config struct {
	Pricing    PricingConfig    `koanf:"pricing"`
	Settlement SettlementConfig `koanf:"settlement"`
	Recovery   RecoveryConfig   `koanf:"recovery"`
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type PricingConfig struct {
	Currency  string  `koanf:"currency"`
	MinCharge float64 `koanf:"min_charge"`
	MaxCharge float64 `koanf:"max_charge"`
}

type SettlementConfig struct {
	BatchThreshold float64       `koanf:"batch_threshold"`
	Interval       time.Duration `koanf:"interval"`
}

type RecoveryConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
	MaxAttempts      uint          `koanf:"max_attempts"`
	RetryBackoff     time.Duration `koanf:"retry_backoff"`
}

type StorageConfig struct {
	Backend      string `koanf:"backend"`
	Path         string `koanf:"path"`
	HistoryLimit int    `koanf:"history_limit"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in defaults. These are applied first, then
// overridden by the config file and environment variables.
func Default() *Config {
	return &Config{
		Pricing: PricingConfig{
			Currency:  "usdc",
			MinCharge: 0.001,
			MaxCharge: 0.1,
		},
		Settlement: SettlementConfig{
			BatchThreshold: 0.01,
			Interval:       time.Hour,
		},
		Recovery: RecoveryConfig{
			FailureThreshold: 5,
			Cooldown:         5 * time.Minute,
			MaxAttempts:      3,
			RetryBackoff:     500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend:      "memory",
			Path:         "",
			HistoryLimit: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty or the file does not exist), and
// TUNEGATE_-prefixed environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps TUNEGATE_SECTION_KEY to section.key. The first
// underscore separates the section; the rest of the name is the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return ""
	}
	switch section {
	case "pricing", "settlement", "recovery", "storage", "logging":
		return section + "." + rest
	}
	return ""
}

// Validate checks invariants between settings.
func (c *Config) Validate() error {
	if c.Pricing.Currency == "" {
		return fmt.Errorf("pricing.currency must not be empty")
	}
	if c.Pricing.MinCharge <= 0 {
		return fmt.Errorf("pricing.min_charge must be positive")
	}
	if c.Pricing.MaxCharge < c.Pricing.MinCharge {
		return fmt.Errorf("pricing.max_charge must be at least pricing.min_charge")
	}
	if c.Settlement.BatchThreshold <= 0 {
		return fmt.Errorf("settlement.batch_threshold must be positive")
	}
	if c.Settlement.Interval <= 0 {
		return fmt.Errorf("settlement.interval must be positive")
	}
	if c.Recovery.FailureThreshold == 0 {
		return fmt.Errorf("recovery.failure_threshold must be at least 1")
	}
	if c.Recovery.MaxAttempts == 0 {
		return fmt.Errorf("recovery.max_attempts must be at least 1")
	}
	switch c.Storage.Backend {
	case "memory":
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.HistoryLimit <= 0 {
		return fmt.Errorf("storage.history_limit must be positive")
	}
	return nil
}

// MinCharge returns the minimum chargeable amount as Money.
func (c *Config) MinCharge() types.Money {
	return toMoney(c.Pricing.MinCharge, c.Pricing.Currency)
}

// MaxCharge returns the maximum single-charge amount as Money.
func (c *Config) MaxCharge() types.Money {
	return toMoney(c.Pricing.MaxCharge, c.Pricing.Currency)
}

// BatchThreshold returns the pending-total that makes a user eligible
// for settlement, as Money.
func (c *Config) BatchThreshold() types.Money {
	return toMoney(c.Settlement.BatchThreshold, c.Pricing.Currency)
}

func toMoney(major float64, currency string) types.Money {
	return types.Micros(int64(math.Round(major*float64(types.MicrosPerUnit))), currency)
}
