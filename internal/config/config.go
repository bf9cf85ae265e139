// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package config holds the Locsync configuration and its layered loader.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the sync core.
type Config struct {
	API          APIConfig          `koanf:"api"`
	Store        StoreConfig        `koanf:"store"`
	Queue        QueueConfig        `koanf:"queue"`
	Poller       PollerConfig       `koanf:"poller"`
	Reachability ReachabilityConfig `koanf:"reachability"`
	Ops          OpsConfig          `koanf:"ops"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// APIConfig configures the remote location gateway.
type APIConfig struct {
	// BaseURL is the location API base URL, e.g. https://api.example.com/api/v1.
	BaseURL string `koanf:"base_url"`

	// Token is the bearer token sent with every request.
	Token string `koanf:"token"`

	// Timeout is the client-side deadline for a single attempt, enforced via
	// context cancellation independently of the transport default.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int `koanf:"max_retries"`

	// BaseDelay is the initial backoff delay between attempts.
	BaseDelay time.Duration `koanf:"base_delay"`

	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration `koanf:"max_delay"`

	// PushRateLimit is the maximum sustained location pushes per second.
	// Zero disables rate limiting.
	PushRateLimit float64 `koanf:"push_rate_limit"`

	// BreakerEnabled wraps the gateway with a circuit breaker so a dead
	// backend degrades to cache fallback without burning retry budgets.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// StoreConfig configures the BadgerDB-backed local store.
type StoreConfig struct {
	// Path is the directory for the BadgerDB files.
	Path string `koanf:"path"`

	// SyncWrites forces fsync after every write.
	SyncWrites bool `koanf:"sync_writes"`

	// PruneKeep is the per-owner location history retained by PruneLocations.
	PruneKeep int `koanf:"prune_keep"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// QueueConfig configures the offline write queue.
type QueueConfig struct {
	// MaxSize is the safety bound enforced during drain. Oldest entries
	// beyond the bound are dropped and counted.
	MaxSize int `koanf:"max_size"`

	// DrainInterval is the periodic drain safety net.
	DrainInterval time.Duration `koanf:"drain_interval"`
}

// PollerConfig configures the adaptive peer-location poller.
type PollerConfig struct {
	// ForegroundInterval is the poll interval while the app is foregrounded.
	ForegroundInterval time.Duration `koanf:"foreground_interval"`

	// BackgroundInterval is the poll interval while backgrounded.
	BackgroundInterval time.Duration `koanf:"background_interval"`

	// LowBatteryThreshold (0..1) disables cosmetic animation work below it.
	LowBatteryThreshold float64 `koanf:"low_battery_threshold"`
}

// ReachabilityConfig configures the connectivity prober.
type ReachabilityConfig struct {
	// ProbeInterval is how often link state and internet reachability are
	// re-checked.
	ProbeInterval time.Duration `koanf:"probe_interval"`

	// ProbeURL is the endpoint probed for internet reachability. Empty means
	// reachability is unknown, which is treated as reachable.
	ProbeURL string `koanf:"probe_url"`

	// ProbeTimeout is the deadline for a single probe request.
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// OpsConfig configures the local status/metrics HTTP listener.
type OpsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with the documented default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "",
			Token:          "",
			Timeout:        10 * time.Second,
			MaxRetries:     1,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			PushRateLimit:  0,
			BreakerEnabled: true,
		},
		Store: StoreConfig{
			Path:       "/data/locsync",
			SyncWrites: true,
			PruneKeep:  100,
			GCInterval: time.Hour,
		},
		Queue: QueueConfig{
			MaxSize:       100,
			DrainInterval: 30 * time.Second,
		},
		Poller: PollerConfig{
			ForegroundInterval:  5 * time.Second,
			BackgroundInterval:  30 * time.Second,
			LowBatteryThreshold: 0.20,
		},
		Reachability: ReachabilityConfig{
			ProbeInterval: 10 * time.Second,
			ProbeURL:      "",
			ProbeTimeout:  5 * time.Second,
		},
		Ops: OpsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    3858,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for values the core cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return &Error{Field: "api.base_url", Message: "base URL is required"}
	}
	if c.API.Timeout < time.Second {
		return &Error{Field: "api.timeout", Message: "must be at least 1 second"}
	}
	if c.API.MaxRetries < 0 {
		return &Error{Field: "api.max_retries", Message: "must not be negative"}
	}
	if c.API.BaseDelay <= 0 {
		return &Error{Field: "api.base_delay", Message: "must be positive"}
	}
	if c.API.MaxDelay < c.API.BaseDelay {
		return &Error{Field: "api.max_delay", Message: "must be at least base_delay"}
	}
	if c.Store.Path == "" {
		return &Error{Field: "store.path", Message: "store path is required"}
	}
	if c.Store.PruneKeep < 1 {
		return &Error{Field: "store.prune_keep", Message: "must be at least 1"}
	}
	if c.Queue.MaxSize < 1 {
		return &Error{Field: "queue.max_size", Message: "must be at least 1"}
	}
	if c.Queue.DrainInterval < time.Second {
		return &Error{Field: "queue.drain_interval", Message: "must be at least 1 second"}
	}
	if c.Poller.ForegroundInterval < time.Second {
		return &Error{Field: "poller.foreground_interval", Message: "must be at least 1 second"}
	}
	if c.Poller.BackgroundInterval < c.Poller.ForegroundInterval {
		return &Error{Field: "poller.background_interval", Message: "must be at least foreground_interval"}
	}
	if c.Poller.LowBatteryThreshold < 0 || c.Poller.LowBatteryThreshold > 1 {
		return &Error{Field: "poller.low_battery_threshold", Message: "must be within [0, 1]"}
	}
	if c.Ops.Enabled && (c.Ops.Port < 1 || c.Ops.Port > 65535) {
		return &Error{Field: "ops.port", Message: "must be a valid TCP port"}
	}
	return nil
}

// Error is a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}
