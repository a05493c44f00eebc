// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package config loads PushRelay configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
//
// Configuration sources (later sources win):
//
//  1. Defaults from defaultConfig()
//  2. YAML file: $CONFIG_PATH, ./pushrelay.yaml, /etc/pushrelay/config.yaml
//  3. Environment variables, e.g. API_BASE_URL, RETRY_MAX_LOCAL_COUNT
//
// Example YAML:
//
//	server:
//	  base_url: https://pxl.example.com/api/v1.1
//	  resource_token: rt-1234
//	retry:
//	  initial_delay: 0
//	  max_local_retry_count: 5
//	  max_attempts: 5
//	background:
//	  budget: 29s
package config

import (
	"time"
)

// Config is the complete agent configuration.
type Config struct {
	Logging      LoggingConfig      `koanf:"logging"`
	Store        StoreConfig        `koanf:"store"`
	Server       ServerConfig       `koanf:"server"`
	Retry        RetryConfig        `koanf:"retry"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	Background   BackgroundConfig   `koanf:"background"`
	Subscribe    SubscribeConfig    `koanf:"subscribe"`
	PushEvent    PushEventConfig    `koanf:"push_event"`
	MobileEvent  MobileEventConfig  `koanf:"mobile_event"`
	Identity     IdentityConfig     `koanf:"identity"`
	API          APIConfig          `koanf:"api"`
	Supervisor   SupervisorConfig   `koanf:"supervisor"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the badger-backed record store.
type StoreConfig struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps all state in memory; pending records do not survive restarts.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites forces fsync after every write.
	SyncWrites bool `koanf:"sync_writes"`

	// Compression enables snappy block compression.
	Compression bool `koanf:"compression"`

	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the discard ratio passed to RunValueLogGC.
	GCRatio float64 `koanf:"gc_ratio" validate:"gt=0,lt=1"`

	// CloseTimeout bounds how long Close waits for badger to flush.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// ServerConfig describes the remote marketing server.
type ServerConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required,url"`
	ResourceToken string        `koanf:"resource_token"`
	Timeout       time.Duration `koanf:"timeout"`

	// RateLimit is the sustained request rate toward the server, per second.
	RateLimit float64 `koanf:"rate_limit" validate:"gt=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=1"`

	// Breaker settings for the outbound circuit breaker.
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerOpenTimeout  time.Duration `koanf:"breaker_open_timeout"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
}

// RetryConfig controls both retry budgets: the per-record attempt limit and
// the per-channel backoff counter.
type RetryConfig struct {
	// InitialDelay is added to the base of the backoff power, in seconds:
	// delay(n) = (InitialDelay + 3) ^ n.
	InitialDelay int `koanf:"initial_delay" validate:"gte=0,lte=60"`

	// MaxLocalRetryCount stops automatic backoff once a channel's counter exceeds it.
	MaxLocalRetryCount int `koanf:"max_local_retry_count" validate:"gte=0,lte=30"`

	// MaxAttempts is the per-record attempt limit; a record is abandoned once
	// its attempt counter reaches it.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1"`

	// ChannelMaxAttempts overrides MaxAttempts per channel.
	ChannelMaxAttempts map[string]int `koanf:"channel_max_attempts"`

	// Unit is the length of one backoff step. Production uses one second.
	Unit time.Duration `koanf:"unit"`
}

// AttemptsFor returns the per-record attempt limit for a channel.
func (r RetryConfig) AttemptsFor(channel string) int {
	if n, ok := r.ChannelMaxAttempts[channel]; ok && n > 0 {
		return n
	}
	return r.MaxAttempts
}

// ConnectivityConfig configures the reachability prober.
type ConnectivityConfig struct {
	// ProbeURL is requested with HEAD; empty disables probing and the agent
	// assumes it is online.
	ProbeURL      string        `koanf:"probe_url" validate:"omitempty,url"`
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
	StartOnline   bool          `koanf:"start_online"`
}

// BackgroundConfig configures the periodic background refresh pass.
type BackgroundConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Budget   time.Duration `koanf:"budget"`
}

// SubscribeConfig configures the subscribe channel.
type SubscribeConfig struct {
	// NotificationsAllowed is the initial notification permission state.
	NotificationsAllowed bool `koanf:"notifications_allowed"`
}

// PushEventConfig configures the push event channel.
type PushEventConfig struct {
	// PerRecordBackoff keys push event backoffs by record instead of by channel.
	PerRecordBackoff bool `koanf:"per_record_backoff"`
}

// MobileEventConfig configures the mobile event channel.
type MobileEventConfig struct {
	// StaleAfter is the age after which an undelivered mobile event is purged.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// IdentityConfig selects how the current user tag is resolved.
type IdentityConfig struct {
	Mode          string `koanf:"mode" validate:"oneof=static jwt"`
	UserTag       string `koanf:"user_tag"`
	JWT           string `koanf:"jwt"`
	MatchingClaim string `koanf:"matching_claim"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Listen          string        `koanf:"listen" validate:"required"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SupervisorConfig configures the suture supervisor tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}
