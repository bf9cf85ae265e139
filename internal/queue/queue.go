// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package queue implements the durable offline write queue. Samples that
// cannot be delivered are persisted and drained later in FIFO order, so an
// update survives process death and reaches the backend exactly as captured.
package queue

import (
	"context"
	"sync/atomic"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/metrics"
	"github.com/mapic/locsync/internal/models"
	"github.com/mapic/locsync/internal/store"
)

// Pusher is the single gateway operation a drain needs.
type Pusher interface {
	PushLocation(ctx context.Context, sample *models.LocationSample) error
}

// OnlineChecker gates drains on the cached reachability value.
type OnlineChecker interface {
	Online() bool
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Attempted int
	Delivered int
	Failed    int
	Dropped   int
}

// Queue persists undeliverable samples and replays them. All entries live in
// the store's queue keyspace; the Queue itself is stateless apart from the
// at-most-one-drain guard, so a restart resumes exactly where the last
// process stopped.
type Queue struct {
	store    *store.Store
	pusher   Pusher
	online   OnlineChecker
	cfg      config.QueueConfig
	draining atomic.Bool
}

// New creates a queue over st, delivering through pusher and gating drains
// on online.
func New(st *store.Store, pusher Pusher, online OnlineChecker, cfg config.QueueConfig) *Queue {
	return &Queue{store: st, pusher: pusher, online: online, cfg: cfg}
}

// Enqueue durably appends a sample for later delivery, then kicks a
// best-effort background drain if the backend looks reachable. The append
// must succeed before Enqueue returns; the drain is advisory.
//
// A copy of the sample is also written to local history under the queued
// sentinel owner, so diagnostics can see pending updates without them
// leaking into peer lists.
func (q *Queue) Enqueue(sample *models.LocationSample) error {
	update := &models.QueuedUpdate{Sample: *sample}
	if err := q.store.AppendQueued(update); err != nil {
		return err
	}
	metrics.QueueEnqueues.Inc()

	marker := *sample
	marker.OwnerID = models.QueuedOwner
	if err := q.store.SaveLocation(&marker); err != nil {
		logging.Warn().Err(err).Msg("queue: failed to mirror queued sample into history")
	}

	dropped, err := q.store.TrimQueued(q.cfg.MaxSize)
	if err != nil {
		logging.Warn().Err(err).Msg("queue: failed to enforce size bound")
	} else if dropped > 0 {
		metrics.QueueOverflowDrops.Add(float64(dropped))
		logging.Warn().Int("dropped", dropped).Int("max_size", q.cfg.MaxSize).Msg("queue: dropped oldest entries past size bound")
	}
	q.updateDepthGauge()

	if q.online.Online() {
		go func() {
			if _, err := q.Drain(context.Background()); err != nil {
				logging.Debug().Err(err).Msg("queue: post-enqueue drain failed")
			}
		}()
	}
	return nil
}

// Size returns the number of pending entries.
func (q *Queue) Size() (int, error) {
	return q.store.QueuedCount()
}

// Clear drops every pending entry without delivering it. Operator tooling
// only; cleared entries are gone for good.
func (q *Queue) Clear() (int, error) {
	cleared, err := q.store.ClearQueued()
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		logging.Warn().Int("cleared", cleared).Msg("queue: cleared without delivery")
	}
	q.updateDepthGauge()
	return cleared, nil
}

// Drain replays pending entries in FIFO order. At most one drain runs at a
// time; a concurrent call returns immediately with zero stats. Offline is a
// quiet no-op. A failed entry is kept in place with its attempt recorded,
// and the drain moves on so one poisoned update cannot block the rest.
func (q *Queue) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	if !q.draining.CompareAndSwap(false, true) {
		return stats, nil
	}
	defer q.draining.Store(false)

	if !q.online.Online() {
		return stats, nil
	}

	dropped, err := q.store.TrimQueued(q.cfg.MaxSize)
	if err != nil {
		return stats, err
	}
	if dropped > 0 {
		stats.Dropped = dropped
		metrics.QueueOverflowDrops.Add(float64(dropped))
	}

	pending, err := q.store.QueuedUpdates()
	if err != nil {
		return stats, err
	}
	if len(pending) == 0 {
		q.updateDepthGauge()
		return stats, nil
	}

	metrics.QueueDrains.Inc()
	logging.Info().Int("pending", len(pending)).Msg("queue: draining")

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		entry := &pending[i]
		stats.Attempted++

		if err := q.pusher.PushLocation(ctx, &entry.Sample); err != nil {
			stats.Failed++
			entry.Attempts++
			entry.LastError = err.Error()
			if uerr := q.store.UpdateQueued(entry); uerr != nil {
				logging.Warn().Err(uerr).Str("queue_id", entry.QueueID).Msg("queue: failed to record delivery attempt")
			}
			logging.Debug().Err(err).Str("queue_id", entry.QueueID).Int("attempts", entry.Attempts).Msg("queue: entry delivery failed, keeping")
			continue
		}

		if err := q.store.DeleteQueued(entry); err != nil {
			logging.Warn().Err(err).Str("queue_id", entry.QueueID).Msg("queue: delivered but failed to delete entry")
		}
		// Delivery makes the sample the device's own latest known state.
		delivered := entry.Sample
		if err := q.store.SaveLocation(&delivered); err != nil {
			logging.Warn().Err(err).Msg("queue: failed to cache delivered sample")
		}
		stats.Delivered++
		metrics.QueueDelivered.Inc()
	}

	q.updateDepthGauge()
	logging.Info().
		Int("attempted", stats.Attempted).
		Int("delivered", stats.Delivered).
		Int("failed", stats.Failed).
		Int("dropped", stats.Dropped).
		Msg("queue: drain finished")
	return stats, nil
}

// WatchOnline subscribes the queue to reachability transitions so a drain
// starts as soon as the backend comes back. Returns the unsubscribe
// function.
func (q *Queue) WatchOnline(subscribe func(func(bool)) func()) func() {
	return subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := q.Drain(context.Background()); err != nil {
				logging.Warn().Err(err).Msg("queue: reconnect drain failed")
			}
		}()
	})
}

func (q *Queue) updateDepthGauge() {
	if count, err := q.store.QueuedCount(); err == nil {
		metrics.QueueDepth.Set(float64(count))
	}
}
