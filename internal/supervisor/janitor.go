// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package supervisor

import (
	"context"
	"time"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/models"
	"github.com/mapic/locsync/internal/store"
)

// StoreJanitor is the data-layer housekeeping service: it trims per-owner
// location history to the configured depth (including the queued-sample
// mirror) and runs value-log garbage collection. Runs at the store's GC
// interval under the supervision tree.
type StoreJanitor struct {
	store *store.Store
	cfg   config.StoreConfig
}

// NewStoreJanitor creates the housekeeping service for st.
func NewStoreJanitor(st *store.Store, cfg config.StoreConfig) *StoreJanitor {
	return &StoreJanitor{store: st, cfg: cfg}
}

// Serve implements suture.Service.
func (j *StoreJanitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (j *StoreJanitor) String() string { return "store-janitor" }

func (j *StoreJanitor) sweep() {
	owners, err := j.store.Owners()
	if err != nil {
		logging.Warn().Err(err).Msg("janitor: owner scan failed")
		return
	}
	owners[models.QueuedOwner] = struct{}{}

	total := 0
	for owner := range owners {
		removed, err := j.store.PruneLocations(owner, j.cfg.PruneKeep)
		if err != nil {
			logging.Warn().Err(err).Str("owner", owner).Msg("janitor: prune failed")
			continue
		}
		total += removed
	}
	if total > 0 {
		logging.Info().Int("removed", total).Msg("janitor: pruned location history")
	}

	if err := j.store.RunGC(); err != nil {
		logging.Warn().Err(err).Msg("janitor: value log GC failed")
	}
}
