// Copyright 2025 Certen Protocol
//
// Policy Configuration Loader
//
// This package provides optional YAML-based overlay configuration for the
// operational knobs that operators tune without redeploying: rate limits,
// pool thresholds, and fee policy. Environment variables loaded via Load()
// remain authoritative for anything this file does not set.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyConfig holds operator-tunable knobs loaded from a YAML file.
type PolicyConfig struct {
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	RateLimit RateLimitPolicy `yaml:"rate_limit"`
	Pool      PoolPolicy      `yaml:"pool"`
	Fee       FeePolicy       `yaml:"fee"`
	Batch     BatchPolicy     `yaml:"batch"`
}

// RateLimitPolicy mirrors the broadcaster's token bucket parameters.
type RateLimitPolicy struct {
	Capacity int      `yaml:"capacity"`
	WindowMS Duration `yaml:"window_ms"`
}

// PoolPolicy mirrors the replenisher's depth-monitoring parameters.
type PoolPolicy struct {
	MinSize           int      `yaml:"min_size"`
	SplitTarget       int      `yaml:"split_target"`
	CheckInterval     Duration `yaml:"check_interval"`
	SplitCooldown     Duration `yaml:"split_cooldown"`
	UnitValueSatoshis int64    `yaml:"unit_value_satoshis"`
}

// FeePolicy mirrors the transaction builder's fee parameters.
type FeePolicy struct {
	RateSatsPerKB int64 `yaml:"rate_sats_per_kb"`
}

// BatchPolicy mirrors the collector/broadcaster batch sizing.
type BatchPolicy struct {
	WindowMS     Duration `yaml:"window_ms"`
	MaxBatchSize int      `yaml:"max_batch_size"`
}

// Duration wraps time.Duration so it can be parsed from YAML strings like
// "5s" or "200ms" instead of requiring raw nanosecond integers.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references with
// values from the process environment before the YAML is parsed.
func expandEnvVars(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return []byte(def)
	})
}

// LoadPolicyConfig reads and parses a YAML policy file, expanding any
// ${VAR} / ${VAR:-default} environment variable references first. A missing
// file is not an error: callers should fall back to the env-var Config.
func LoadPolicyConfig(path string) (*PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read policy config %s: %w", path, err)
	}

	expanded := expandEnvVars(raw)

	var cfg PolicyConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyTo overlays non-zero policy values onto the base Config.
func (p *PolicyConfig) ApplyTo(cfg *Config) {
	if p == nil {
		return
	}
	if p.RateLimit.Capacity > 0 {
		cfg.RateLimitCapacity = p.RateLimit.Capacity
	}
	if p.RateLimit.WindowMS.Duration > 0 {
		cfg.RateLimitWindow = p.RateLimit.WindowMS.Duration
	}
	if p.Pool.MinSize > 0 {
		cfg.PoolMinSize = p.Pool.MinSize
	}
	if p.Pool.SplitTarget > 0 {
		cfg.PoolSplitTarget = p.Pool.SplitTarget
	}
	if p.Pool.CheckInterval.Duration > 0 {
		cfg.PoolCheckInterval = p.Pool.CheckInterval.Duration
	}
	if p.Pool.SplitCooldown.Duration > 0 {
		cfg.PoolSplitCooldown = p.Pool.SplitCooldown.Duration
	}
	if p.Pool.UnitValueSatoshis > 0 {
		cfg.PoolUnitValueSatoshis = p.Pool.UnitValueSatoshis
	}
	if p.Fee.RateSatsPerKB > 0 {
		cfg.FeeRateSatsPerKB = p.Fee.RateSatsPerKB
	}
	if p.Batch.WindowMS.Duration > 0 {
		cfg.BatchWindow = p.Batch.WindowMS.Duration
	}
	if p.Batch.MaxBatchSize > 0 {
		cfg.MaxBatchSize = p.Batch.MaxBatchSize
	}
}
