// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package queue

import (
	"context"
	"time"

	"github.com/mapic/locsync/internal/logging"
)

// DrainLoop periodically drains the queue as a safety net for missed
// reconnect events. It implements suture.Service; the supervision tree owns
// its lifecycle and restarts it on failure.
type DrainLoop struct {
	queue    *Queue
	interval time.Duration
}

// NewDrainLoop creates the periodic drain service.
func NewDrainLoop(q *Queue, interval time.Duration) *DrainLoop {
	return &DrainLoop{queue: q, interval: interval}
}

// Serve implements suture.Service: drain on every tick until canceled.
// Drain failures are logged, not returned, so a flaky backend does not
// thrash the supervisor.
func (d *DrainLoop) Serve(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.queue.Drain(ctx); err != nil {
				logging.Warn().Err(err).Msg("queue: periodic drain failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (d *DrainLoop) String() string { return "queue-drain-loop" }
