// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads bidder daemon configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bidder daemon configuration
type Config struct {
	Environment string       `yaml:"environment"`
	Server      ServerConfig `yaml:"server"`
	Store       StoreConfig  `yaml:"store"`
	Cache       CacheConfig  `yaml:"cache"`
	Bidding     BidConfig    `yaml:"bidding"`
	Log         LogConfig    `yaml:"log"`
}

// ServerConfig holds the listener settings
type ServerConfig struct {
	Port    int `yaml:"port"`
	OpsPort int `yaml:"ops_port"`
}

// StoreConfig selects and configures the decision store backend
type StoreConfig struct {
	// Backend is "memory" or "badger"
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CacheConfig controls the campaign snapshot cache
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// BidConfig holds the decision pipeline tunables
type BidConfig struct {
	Platforms      []string `yaml:"platforms"`
	MaxFloorPrice  float64  `yaml:"max_floor_price"`
	SLAWarnMS      int      `yaml:"sla_warn_ms"`
	DecisionBuffer int      `yaml:"decision_buffer"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:    8090,
			OpsPort: 9090,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "data",
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Bidding: BidConfig{
			MaxFloorPrice:  15.0,
			SLAWarnMS:      80,
			DecisionBuffer: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, if any, and applies environment
// overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file settings from the process environment
func (c *Config) applyEnv() {
	if v := os.Getenv("BIDDER_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("BIDDER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BIDDER_OPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.OpsPort = port
		}
	}
	if v := os.Getenv("BIDDER_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("BIDDER_DATA_DIR"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("BIDDER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values the daemon cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.OpsPort <= 0 || c.Server.OpsPort > 65535 {
		return fmt.Errorf("invalid ops port %d", c.Server.OpsPort)
	}
	if c.Server.Port == c.Server.OpsPort {
		return fmt.Errorf("server and ops ports collide on %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "badger" && c.Store.Path == "" {
		return fmt.Errorf("badger backend requires a store path")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Bidding.MaxFloorPrice <= 0 {
		return fmt.Errorf("max floor price must be positive, got %v", c.Bidding.MaxFloorPrice)
	}
	return nil
}

// CacheTTL returns the snapshot TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// SLAWarn returns the latency warning threshold as a duration
func (c *Config) SLAWarn() time.Duration {
	return time.Duration(c.Bidding.SLAWarnMS) * time.Millisecond
}
