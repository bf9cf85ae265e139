// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("API.Timeout = %v, want 10s", cfg.API.Timeout)
	}
	if cfg.API.MaxRetries != 1 {
		t.Errorf("API.MaxRetries = %d, want 1", cfg.API.MaxRetries)
	}
	if cfg.API.BaseDelay != 500*time.Millisecond || cfg.API.MaxDelay != 2*time.Second {
		t.Errorf("backoff defaults = %v/%v, want 500ms/2s", cfg.API.BaseDelay, cfg.API.MaxDelay)
	}
	if cfg.Queue.MaxSize != 100 {
		t.Errorf("Queue.MaxSize = %d, want 100", cfg.Queue.MaxSize)
	}
	if cfg.Queue.DrainInterval != 30*time.Second {
		t.Errorf("Queue.DrainInterval = %v, want 30s", cfg.Queue.DrainInterval)
	}
	if cfg.Poller.ForegroundInterval != 5*time.Second || cfg.Poller.BackgroundInterval != 30*time.Second {
		t.Errorf("poll intervals = %v/%v, want 5s/30s", cfg.Poller.ForegroundInterval, cfg.Poller.BackgroundInterval)
	}
	if cfg.Poller.LowBatteryThreshold != 0.20 {
		t.Errorf("LowBatteryThreshold = %v, want 0.20", cfg.Poller.LowBatteryThreshold)
	}
	if cfg.Store.PruneKeep != 100 {
		t.Errorf("Store.PruneKeep = %d, want 100", cfg.Store.PruneKeep)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.API.BaseURL = "https://api.example.com"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() on valid config = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing base URL", func(c *Config) { c.API.BaseURL = "" }, "api.base_url"},
		{"timeout too small", func(c *Config) { c.API.Timeout = 100 * time.Millisecond }, "api.timeout"},
		{"negative retries", func(c *Config) { c.API.MaxRetries = -1 }, "api.max_retries"},
		{"max delay below base", func(c *Config) { c.API.MaxDelay = c.API.BaseDelay / 2 }, "api.max_delay"},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"zero queue size", func(c *Config) { c.Queue.MaxSize = 0 }, "queue.max_size"},
		{"background faster than foreground", func(c *Config) {
			c.Poller.BackgroundInterval = c.Poller.ForegroundInterval - time.Second
		}, "poller.background_interval"},
		{"battery threshold out of range", func(c *Config) { c.Poller.LowBatteryThreshold = 1.5 }, "poller.low_battery_threshold"},
		{"invalid ops port", func(c *Config) { c.Ops.Enabled = true; c.Ops.Port = 70000 }, "ops.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *Error", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Error.Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locsync.yaml")
	yaml := []byte(`
api:
  base_url: https://file.example.com
  timeout: 15s
queue:
  max_size: 50
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	// Env beats file.
	t.Setenv("LOCSYNC_API_BASE_URL", "https://env.example.com")
	t.Setenv("LOCSYNC_QUEUE_DRAIN_INTERVAL", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want file value 15s", cfg.API.Timeout)
	}
	if cfg.Queue.MaxSize != 50 {
		t.Errorf("MaxSize = %d, want file value 50", cfg.Queue.MaxSize)
	}
	if cfg.Queue.DrainInterval != 45*time.Second {
		t.Errorf("DrainInterval = %v, want env value 45s", cfg.Queue.DrainInterval)
	}
	// Untouched values keep their defaults.
	if cfg.Poller.ForegroundInterval != 5*time.Second {
		t.Errorf("ForegroundInterval = %v, want default 5s", cfg.Poller.ForegroundInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LOCSYNC_API_BASE_URL", "https://api.example.com")
	t.Setenv("LOCSYNC_QUEUE_MAX_SIZE", "0")

	_, err := Load()
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Load() error = %v, want validation *Error", err)
	}
	if cerr.Field != "queue.max_size" {
		t.Errorf("Error.Field = %q, want queue.max_size", cerr.Field)
	}
}

func TestEnvTransformSkipsUnmappedKeys(t *testing.T) {
	if got := envTransform("PATH"); got != "" {
		t.Errorf("envTransform(PATH) = %q, want skipped", got)
	}
	if got := envTransform("LOCSYNC_API_BASE_URL"); got != "api.base_url" {
		t.Errorf("envTransform(LOCSYNC_API_BASE_URL) = %q", got)
	}
	if got := envTransform("LOG_LEVEL"); got != "logging.level" {
		t.Errorf("envTransform(LOG_LEVEL) = %q", got)
	}
}
