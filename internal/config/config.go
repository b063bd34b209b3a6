// Package config provides configuration loading for stated.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/stated/internal/cache"
	"github.com/fyrsmithlabs/stated/internal/logging"
)

// Config is the top-level stated configuration.
type Config struct {
	// Store configures the project-state store.
	Store StoreConfig `koanf:"store"`

	// Logging configures the zap logger.
	Logging logging.Config `koanf:"logging"`
}

// StoreConfig configures the data directory and cache.
type StoreConfig struct {
	DataDir    string        `koanf:"data_dir"`
	TempMaxAge time.Duration `koanf:"temp_max_age"`
	Cache      cache.Config  `koanf:"cache"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = defaultDataDir()
	}
	if cfg.Store.TempMaxAge == 0 {
		cfg.Store.TempMaxAge = time.Hour
	}

	defaults := cache.DefaultConfig()
	if cfg.Store.Cache.TTL == 0 {
		cfg.Store.Cache.TTL = defaults.TTL
	}
	if cfg.Store.Cache.MaxEntries == 0 {
		cfg.Store.Cache.MaxEntries = defaults.MaxEntries
	}
	if cfg.Store.Cache.MaxBytes == 0 {
		cfg.Store.Cache.MaxBytes = defaults.MaxBytes
	}
	if cfg.Store.Cache.SweepInterval == 0 {
		cfg.Store.Cache.SweepInterval = defaults.SweepInterval
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must be set")
	}
	if c.Store.Cache.TTL <= 0 {
		return fmt.Errorf("store.cache.ttl must be > 0")
	}
	if c.Store.Cache.MaxEntries < 0 {
		return fmt.Errorf("store.cache.max_entries must be >= 0")
	}
	if c.Store.Cache.MaxBytes < 0 {
		return fmt.Errorf("store.cache.max_bytes must be >= 0")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}
