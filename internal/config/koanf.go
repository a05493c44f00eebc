// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"pushrelay.yaml",
	"pushrelay.yml",
	"/etc/pushrelay/config.yaml",
	"/etc/pushrelay/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:         "/data/pushrelay",
			InMemory:     false,
			SyncWrites:   true,
			Compression:  false,
			GCInterval:   10 * time.Minute,
			GCRatio:      0.5,
			CloseTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			BaseURL:             "https://pxl.altcraft.com/api/v1.1",
			Timeout:             30 * time.Second,
			RateLimit:           10,
			RateBurst:           20,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerOpenTimeout:  30 * time.Second,
			BreakerInterval:     time.Minute,
		},
		Retry: RetryConfig{
			InitialDelay:       0,
			MaxLocalRetryCount: 5,
			MaxAttempts:        5,
			Unit:               time.Second,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      "",
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  5 * time.Second,
			StartOnline:   true,
		},
		Background: BackgroundConfig{
			Enabled:  true,
			Interval: 15 * time.Minute,
			Budget:   29 * time.Second,
		},
		Subscribe: SubscribeConfig{
			NotificationsAllowed: true,
		},
		PushEvent: PushEventConfig{
			PerRecordBackoff: true,
		},
		MobileEvent: MobileEventConfig{
			StaleAfter: 7 * 24 * time.Hour,
		},
		Identity: IdentityConfig{
			Mode:          "static",
			MatchingClaim: "sub",
		},
		API: APIConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:8741",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// API_BASE_URL -> server.base_url, RETRY_MAX_ATTEMPTS -> retry.max_attempts
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"store_path":          "store.path",
	"store_in_memory":     "store.in_memory",
	"store_sync_writes":   "store.sync_writes",
	"store_compression":   "store.compression",
	"store_gc_interval":   "store.gc_interval",
	"store_gc_ratio":      "store.gc_ratio",
	"store_close_timeout": "store.close_timeout",

	"api_base_url":          "server.base_url",
	"resource_token":        "server.resource_token",
	"server_timeout":        "server.timeout",
	"server_rate_limit":     "server.rate_limit",
	"server_rate_burst":     "server.rate_burst",
	"breaker_min_requests":  "server.breaker_min_requests",
	"breaker_failure_ratio": "server.breaker_failure_ratio",
	"breaker_open_timeout":  "server.breaker_open_timeout",
	"breaker_interval":      "server.breaker_interval",

	"retry_initial_delay":        "retry.initial_delay",
	"retry_max_local_count":      "retry.max_local_retry_count",
	"retry_max_attempts":         "retry.max_attempts",
	"retry_channel_max_attempts": "retry.channel_max_attempts",
	"retry_unit":                 "retry.unit",

	"probe_url":      "connectivity.probe_url",
	"probe_interval": "connectivity.probe_interval",
	"probe_timeout":  "connectivity.probe_timeout",
	"start_online":   "connectivity.start_online",

	"background_enabled":  "background.enabled",
	"background_interval": "background.interval",
	"background_budget":   "background.budget",

	"notifications_allowed":         "subscribe.notifications_allowed",
	"push_event_per_record_backoff": "push_event.per_record_backoff",
	"mobile_event_stale_after":      "mobile_event.stale_after",

	"identity_mode":           "identity.mode",
	"identity_user_tag":       "identity.user_tag",
	"identity_jwt":            "identity.jwt",
	"identity_matching_claim": "identity.matching_claim",

	"api_enabled":           "api.enabled",
	"api_listen":            "api.listen",
	"api_rate_limit_reqs":   "api.rate_limit_reqs",
	"api_rate_limit_window": "api.rate_limit_window",
	"api_shutdown_timeout":  "api.shutdown_timeout",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// returns "" so koanf skips it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// mapConfigPaths are parsed from "name=value,name=value" strings when they
// come from the environment.
var mapConfigPaths = []string{
	"retry.channel_max_attempts",
}

// processMapFields converts comma-separated key=value strings into maps.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		parsed := make(map[string]interface{})
		for _, pair := range strings.Split(raw, ",") {
			name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
			if !found || name == "" {
				return fmt.Errorf("%s: malformed entry %q", path, pair)
			}
			parsed[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
		k.Delete(path)
		if err := k.Set(path, parsed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
