// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"locsync.yaml",
	"locsync.yml",
	"/etc/locsync/config.yaml",
	"/etc/locsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "LOCSYNC_CONFIG"

// Load builds the configuration from layered sources:
//  1. built-in defaults
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to config paths. Unmapped
// variables are skipped so unrelated environment noise never reaches the
// config tree.
//
//	LOCSYNC_API_BASE_URL -> api.base_url
//	LOCSYNC_QUEUE_MAX_SIZE -> queue.max_size
func envTransform(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"locsync_api_base_url":        "api.base_url",
		"locsync_api_token":           "api.token",
		"locsync_api_timeout":         "api.timeout",
		"locsync_api_max_retries":     "api.max_retries",
		"locsync_api_base_delay":      "api.base_delay",
		"locsync_api_max_delay":       "api.max_delay",
		"locsync_api_push_rate_limit": "api.push_rate_limit",
		"locsync_api_breaker_enabled": "api.breaker_enabled",

		"locsync_store_path":        "store.path",
		"locsync_store_sync_writes": "store.sync_writes",
		"locsync_store_prune_keep":  "store.prune_keep",
		"locsync_store_gc_interval": "store.gc_interval",

		"locsync_queue_max_size":       "queue.max_size",
		"locsync_queue_drain_interval": "queue.drain_interval",

		"locsync_poller_foreground_interval":   "poller.foreground_interval",
		"locsync_poller_background_interval":   "poller.background_interval",
		"locsync_poller_low_battery_threshold": "poller.low_battery_threshold",

		"locsync_probe_interval": "reachability.probe_interval",
		"locsync_probe_url":      "reachability.probe_url",
		"locsync_probe_timeout":  "reachability.probe_timeout",

		"locsync_ops_enabled": "ops.enabled",
		"locsync_ops_host":    "ops.host",
		"locsync_ops_port":    "ops.port",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
