package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the anchoring service
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database Configuration (URL-based)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Signing Configuration
	SigningKeyPath string // path to the server's hex-encoded 32-byte secp256k1 signing key

	// Ledger broadcast adapter
	LedgerBroadcastURL string
	BroadcastTimeout   time.Duration

	// Admission pipeline
	TimestampSkewSeconds int

	// UTXO pool manager
	UTXOLeaseDuration time.Duration

	// Single-job worker / batch broadcaster shared knobs
	SendingTTL        time.Duration
	FeeRateSatsPerKB  int64
	ChangeAddress     string

	// Batch collector + broadcaster
	BatchWindow       time.Duration
	MaxBatchSize      int
	RateLimitCapacity int
	RateLimitWindow   time.Duration

	// Replenisher
	PoolMinSize          int
	PoolSplitTarget       int
	PoolCheckInterval     time.Duration
	PoolSplitCooldown     time.Duration
	PoolUnitValueSatoshis int64

	// Service identity / logging
	ValidatorID string
	LogLevel    string
}

// Load reads configuration from environment variables.
//
// SECURITY: Required variables have no defaults and must be explicitly set.
// Call Validate() after Load() to ensure all required configuration is present.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", true),

		SigningKeyPath: getEnv("SIGNING_KEY_PATH", ""),

		LedgerBroadcastURL: getEnv("LEDGER_BROADCAST_URL", ""),
		BroadcastTimeout:   getEnvDuration("BROADCAST_TIMEOUT", 30*time.Second),

		TimestampSkewSeconds: getEnvInt("TIMESTAMP_SKEW_SECONDS", 600),

		UTXOLeaseDuration: getEnvDuration("UTXO_LEASE_DURATION", 5*time.Minute),

		SendingTTL:       getEnvDuration("SENDING_TTL", 2*time.Minute),
		FeeRateSatsPerKB: getEnvInt64("FEE_RATE_SATS_PER_KB", 100),
		ChangeAddress:    getEnv("CHANGE_ADDRESS", ""),

		BatchWindow:       getEnvDuration("BATCH_WINDOW", 5*time.Second),
		MaxBatchSize:      getEnvInt("MAX_BATCH_SIZE", 500),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 500),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 3*time.Second),

		PoolMinSize:           getEnvInt("POOL_MIN_SIZE", 50000),
		PoolSplitTarget:       getEnvInt("POOL_SPLIT_TARGET", 100000),
		PoolCheckInterval:     getEnvDuration("POOL_CHECK_INTERVAL", 30*time.Second),
		PoolSplitCooldown:     getEnvDuration("POOL_SPLIT_COOLDOWN", 10*time.Minute),
		PoolUnitValueSatoshis: getEnvInt64("POOL_UNIT_VALUE_SATOSHIS", 100),

		ValidatorID: getEnv("VALIDATOR_ID", "anchor-svc-default"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and internally
// consistent. This must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	}
	if c.SigningKeyPath == "" {
		errs = append(errs, "SIGNING_KEY_PATH is required but not set")
	}
	if c.LedgerBroadcastURL == "" {
		errs = append(errs, "LEDGER_BROADCAST_URL is required but not set")
	}
	if c.ChangeAddress == "" {
		errs = append(errs, "CHANGE_ADDRESS is required but not set")
	}
	if c.TimestampSkewSeconds <= 0 {
		errs = append(errs, "TIMESTAMP_SKEW_SECONDS must be positive")
	}
	if c.SendingTTL > c.UTXOLeaseDuration {
		errs = append(errs, "SENDING_TTL must be <= UTXO_LEASE_DURATION")
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, "MAX_BATCH_SIZE must be positive")
	}
	if c.RateLimitCapacity <= 0 {
		errs = append(errs, "RATE_LIMIT_CAPACITY must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local development.
// WARNING: Do not use this in production - use Validate() instead.
func (c *Config) ValidateForDevelopment() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("development configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
