// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package main is the entry point for the locsync daemon.
//
// Locsync is the offline-resilient synchronization core of a location
// sharing app. It keeps a durable local store of location history, pushes
// the device's own location to the backend with bounded retries, queues
// undeliverable updates for replay, and polls peer locations at a cadence
// that follows the app lifecycle.
//
// # Startup Order
//
//  1. Configuration: layered Koanf v2 load (defaults, YAML file, LOCSYNC_* env)
//  2. Logging: zerolog per the loaded configuration
//  3. Local store: BadgerDB at the configured path
//  4. Reachability monitor and gateway client (with circuit breaker)
//  5. Offline queue, poller, orchestrator
//  6. Supervision tree: store janitor, prober, drain loop, ops server
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervision tree, stop the poller, and close
// the store. The queue needs no flush on shutdown; entries are already
// durable.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/gateway"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/ops"
	"github.com/mapic/locsync/internal/poller"
	"github.com/mapic/locsync/internal/power"
	"github.com/mapic/locsync/internal/queue"
	"github.com/mapic/locsync/internal/reachability"
	"github.com/mapic/locsync/internal/store"
	"github.com/mapic/locsync/internal/supervisor"
	"github.com/mapic/locsync/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("base_url", cfg.API.BaseURL).
		Str("store_path", cfg.Store.Path).
		Dur("drain_interval", cfg.Queue.DrainInterval).
		Msg("Starting locsync")

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing local store")
		}
	}()

	monitor := reachability.NewMonitor()
	// The daemon has no platform connectivity callback; assume the link is
	// up and let the prober decide end-to-end reachability.
	monitor.SetLink(true)

	var api gateway.API = gateway.NewClient(cfg.API)
	if cfg.API.BreakerEnabled {
		api = gateway.NewBreakerClient(api)
	}

	pw := power.NewMonitor(cfg.Poller.LowBatteryThreshold)
	q := queue.New(st, api, monitor, cfg.Queue)
	p := poller.New(api, st, cfg.Poller)
	sy := syncer.New(api, st, monitor, pw, q, p)

	unsubDrain := q.WatchOnline(monitor.Subscribe)
	defer unsubDrain()
	unsubCadence := p.FollowAppState(pw)
	defer unsubCadence()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogger := slog.New(logging.NewSlogHandler())
	tree := supervisor.NewTree(slogger, supervisor.DefaultTreeConfig())
	tree.AddDataService(supervisor.NewStoreJanitor(st, cfg.Store))
	tree.AddSyncService(reachability.NewProber(monitor, cfg.Reachability))
	tree.AddSyncService(queue.NewDrainLoop(q, cfg.Queue.DrainInterval))
	if cfg.Ops.Enabled {
		tree.AddSyncService(ops.NewServer(cfg.Ops, sy))
	}

	treeErr := tree.ServeBackground(ctx)
	p.Start()
	defer p.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		if err := <-treeErr; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-treeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Shutdown complete")
}
