// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package config

import (
	"time"

	"github.com/tomtom215/pushrelay/internal/models"
	"github.com/tomtom215/pushrelay/internal/validation"
)

// ConfigError describes one invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		first := verr.Errors()[0]
		return &ConfigError{Field: first.Field(), Message: first.Error()}
	}

	checks := []func() error{
		c.validateStore,
		c.validateRetry,
		c.validateDurations,
		c.validateIdentity,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return &ConfigError{Field: "store.path", Message: "required unless store.in_memory is set"}
	}
	return nil
}

func (c *Config) validateRetry() error {
	for name, n := range c.Retry.ChannelMaxAttempts {
		if !models.Channel(name).Valid() {
			return &ConfigError{Field: "retry.channel_max_attempts", Message: "unknown channel " + name}
		}
		if n < 1 {
			return &ConfigError{Field: "retry.channel_max_attempts." + name, Message: "must be at least 1"}
		}
	}
	if c.Retry.Unit <= 0 {
		return &ConfigError{Field: "retry.unit", Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateDurations() error {
	positive := []struct {
		field string
		value time.Duration
	}{
		{"server.timeout", c.Server.Timeout},
		{"server.breaker_open_timeout", c.Server.BreakerOpenTimeout},
		{"store.gc_interval", c.Store.GCInterval},
		{"connectivity.probe_interval", c.Connectivity.ProbeInterval},
		{"connectivity.probe_timeout", c.Connectivity.ProbeTimeout},
		{"background.budget", c.Background.Budget},
		{"mobile_event.stale_after", c.MobileEvent.StaleAfter},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Message: "must be positive"}
		}
	}
	if c.Background.Enabled && c.Background.Interval <= c.Background.Budget {
		return &ConfigError{Field: "background.interval", Message: "must be longer than background.budget"}
	}
	if c.API.RateLimitReqs > 0 && c.API.RateLimitWindow <= 0 {
		return &ConfigError{Field: "api.rate_limit_window", Message: "must be positive when rate limiting is enabled"}
	}
	return nil
}

func (c *Config) validateIdentity() error {
	// An empty static user tag is valid: drains abort until a user is known.
	if c.Identity.Mode == "jwt" && c.Identity.MatchingClaim == "" {
		return &ConfigError{Field: "identity.matching_claim", Message: "required when identity.mode is jwt"}
	}
	return nil
}
