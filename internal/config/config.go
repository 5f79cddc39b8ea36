// Package config loads the daemon configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/chain"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig controls the optional PostgreSQL backend. An empty DSN
// selects the in-memory store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	Bootstrap    bool   `yaml:"bootstrap"`
}

// PledgeConfig carries the contract identity settings.
type PledgeConfig struct {
	Owner string `yaml:"owner"`
}

// RandomnessConfig selects the oracle adapter and its passthrough
// parameters. Mode is "seeded" (deterministic, default) or "chain".
type RandomnessConfig struct {
	Mode             string `yaml:"mode"`
	Seed             int64  `yaml:"seed"`
	Lane             string `yaml:"lane"`
	SubscriptionID   uint64 `yaml:"subscription_id"`
	CallbackGasLimit uint32 `yaml:"callback_gas_limit"`
	OracleToken      string `yaml:"oracle_token"`
}

// UpkeepConfig controls the keeper runner.
type UpkeepConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// RateLimitConfig controls the HTTP rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Logging    logger.LoggingConfig `yaml:"logging"`
	Pledge     PledgeConfig         `yaml:"pledge"`
	Randomness RandomnessConfig     `yaml:"randomness"`
	Upkeep     UpkeepConfig         `yaml:"upkeep"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
	Chain      chain.Config         `yaml:"chain"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging:    logger.LoggingConfig{Level: "info", Format: "text"},
		Randomness: RandomnessConfig{Mode: "seeded", Lane: randomness.DefaultLane, SubscriptionID: randomness.DefaultSubscriptionID, CallbackGasLimit: randomness.DefaultCallbackGasLimit},
		Upkeep:     UpkeepConfig{Enabled: true, Schedule: "@every 30s"},
		RateLimit:  RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
	}
}

// Load reads CONFIG_PATH (default config/pledged.yaml) when it exists,
// applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/pledged.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if strings.TrimSpace(cfg.Pledge.Owner) == "" {
		return nil, fmt.Errorf("pledge owner is required (PLEDGE_OWNER)")
	}
	if cfg.Randomness.Mode != "seeded" && cfg.Randomness.Mode != "chain" {
		return nil, fmt.Errorf("randomness mode must be seeded or chain, got %q", cfg.Randomness.Mode)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Pledge.Owner, "PLEDGE_OWNER")
	setString(&cfg.Randomness.Mode, "RANDOMNESS_MODE")
	setInt64(&cfg.Randomness.Seed, "RANDOMNESS_SEED")
	setString(&cfg.Randomness.Lane, "RANDOMNESS_LANE")
	setUint64(&cfg.Randomness.SubscriptionID, "RANDOMNESS_SUBSCRIPTION_ID")
	setString(&cfg.Randomness.OracleToken, "ORACLE_TOKEN")
	setString(&cfg.Upkeep.Schedule, "UPKEEP_SCHEDULE")
	setString(&cfg.Chain.RPCEndpoint, "CHAIN_RPC_ENDPOINT")
	setString(&cfg.Chain.OracleContract, "CHAIN_ORACLE_CONTRACT")
	setString(&cfg.Chain.GasToken, "CHAIN_GAS_TOKEN")
	setString(&cfg.Chain.WIF, "CHAIN_WIF")

	if raw := os.Getenv("UPKEEP_ENABLED"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Upkeep.Enabled = v
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func setInt64(dst *int64, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			*dst = v
		}
	}
}

func setUint64(dst *uint64, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			*dst = v
		}
	}
}
