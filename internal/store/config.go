// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package store

import (
	"time"

	"github.com/tomtom215/pushrelay/internal/config"
)

// Config holds the badger options the store exposes.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	Path string

	// InMemory keeps everything in memory. Path is ignored.
	InMemory bool

	// SyncWrites forces fsync after every write.
	SyncWrites bool

	// Compression enables snappy block compression.
	Compression bool

	// GCInterval is how often the compactor runs value-log GC.
	GCInterval time.Duration

	// GCRatio is the discard ratio for value-log GC (0 < ratio < 1).
	GCRatio float64

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "/data/pushrelay",
		SyncWrites:   true,
		GCInterval:   10 * time.Minute,
		GCRatio:      0.5,
		CloseTimeout: 30 * time.Second,
	}
}

// ConfigFrom converts the store section of the agent configuration. Zero
// durations and ratios fall back to DefaultConfig.
func ConfigFrom(cfg *config.StoreConfig) Config {
	out := DefaultConfig()
	out.Path = cfg.Path
	out.InMemory = cfg.InMemory
	out.SyncWrites = cfg.SyncWrites
	out.Compression = cfg.Compression
	if cfg.GCInterval > 0 {
		out.GCInterval = cfg.GCInterval
	}
	if cfg.GCRatio > 0 {
		out.GCRatio = cfg.GCRatio
	}
	if cfg.CloseTimeout > 0 {
		out.CloseTimeout = cfg.CloseTimeout
	}
	return out
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return &ConfigError{Field: "Path", Message: "required unless InMemory is set"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1 (exclusive)"}
	}
	if c.GCInterval <= 0 {
		return &ConfigError{Field: "GCInterval", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a store configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "store config error: " + e.Field + ": " + e.Message
}
