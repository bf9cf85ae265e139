// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package syncer is the orchestration layer tying reachability, the gateway,
// the offline queue and the poller into the two operations the app calls:
// send my location, fetch everyone else's.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mapic/locsync/internal/gateway"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/models"
	"github.com/mapic/locsync/internal/poller"
	"github.com/mapic/locsync/internal/power"
	"github.com/mapic/locsync/internal/queue"
	"github.com/mapic/locsync/internal/reachability"
	"github.com/mapic/locsync/internal/store"
)

// Syncer coordinates outbound and inbound location flow.
type Syncer struct {
	api     gateway.API
	store   *store.Store
	monitor *reachability.Monitor
	power   *power.Monitor
	queue   *queue.Queue
	poller  *poller.Poller

	mu      sync.Mutex
	loading bool
	peers   []models.LocationSample
	lastErr error
	fetched time.Time
}

// Snapshot is the reactive state the UI binds to.
type Snapshot struct {
	Online            bool          `json:"online"`
	QueueDepth        int           `json:"queueDepth"`
	Polling           bool          `json:"polling"`
	PollInterval      time.Duration `json:"pollInterval"`
	InBackground      bool          `json:"inBackground"`
	BatteryLevel      float64       `json:"batteryLevel"`
	AnimationsEnabled bool          `json:"animationsEnabled"`
	Loading           bool          `json:"loading"`
	PeerCount         int           `json:"peerCount"`
	LastError         string        `json:"lastError,omitempty"`
	LastFetch         time.Time     `json:"lastFetch"`
}

// New wires the orchestrator. All collaborators are required.
func New(api gateway.API, st *store.Store, monitor *reachability.Monitor, pw *power.Monitor, q *queue.Queue, p *poller.Poller) *Syncer {
	return &Syncer{
		api:     api,
		store:   st,
		monitor: monitor,
		power:   pw,
		queue:   q,
		poller:  p,
	}
}

// SendLocation delivers one sample, or guarantees it will be delivered
// later. The decision uses the monitor's cached online value:
//
//   - Offline: enqueue durably and return nil. The sample is accepted; the
//     send is merely deferred.
//   - Online: push immediately. On success, cache locally and return nil.
//     On failure, enqueue durably AND return the push error, so the caller
//     sees the degradation while losing nothing.
//
// An enqueue failure is the only unrecoverable outcome and is always
// returned.
func (s *Syncer) SendLocation(ctx context.Context, sample *models.LocationSample) error {
	if !s.monitor.Online() {
		logging.Debug().Str("owner", sample.OwnerID).Msg("syncer: offline, queueing location")
		return s.queue.Enqueue(sample)
	}

	if err := s.api.PushLocation(ctx, sample); err != nil {
		if qerr := s.queue.Enqueue(sample); qerr != nil {
			return fmt.Errorf("push failed (%v) and enqueue failed: %w", err, qerr)
		}
		logging.Warn().Err(err).Str("owner", sample.OwnerID).Msg("syncer: push failed, queued for retry")
		return err
	}

	cached := *sample
	if err := s.store.SaveLocation(&cached); err != nil {
		logging.Warn().Err(err).Msg("syncer: failed to cache own location")
	}
	return nil
}

// FetchPeerLocations returns the current peer snapshot, degrading to the
// stale cached snapshot plus the fetch error when the backend is
// unavailable. The reactive state (peer list, error, loading flag) is
// updated in one step after the fetch resolves, so an observer never sees
// the error set while the peer list has already been cleared.
func (s *Syncer) FetchPeerLocations(ctx context.Context) ([]models.LocationSample, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	samples, err := s.poller.Fetch(ctx)

	s.mu.Lock()
	s.loading = false
	s.peers = samples
	s.lastErr = err
	s.fetched = time.Now().UTC()
	s.mu.Unlock()

	return samples, err
}

// Peers returns the last fetched (or cache-fallback) peer list.
func (s *Syncer) Peers() []models.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LocationSample(nil), s.peers...)
}

// DrainQueue forces an immediate drain pass, for pull-to-refresh style UX.
func (s *Syncer) DrainQueue(ctx context.Context) (queue.DrainStats, error) {
	return s.queue.Drain(ctx)
}

// State returns a point-in-time snapshot of the sync core's reactive state.
func (s *Syncer) State() Snapshot {
	depth, err := s.queue.Size()
	if err != nil {
		depth = -1
	}
	s.mu.Lock()
	loading := s.loading
	peerCount := len(s.peers)
	lastErr := ""
	if s.lastErr != nil {
		lastErr = s.lastErr.Error()
	}
	fetched := s.fetched
	s.mu.Unlock()

	return Snapshot{
		Online:            s.monitor.Online(),
		QueueDepth:        depth,
		Polling:           s.poller.Running(),
		PollInterval:      s.poller.Interval(),
		InBackground:      s.power.InBackground(),
		BatteryLevel:      s.power.BatteryLevel(),
		AnimationsEnabled: s.power.AnimationsEnabled(),
		Loading:           loading,
		PeerCount:         peerCount,
		LastError:         lastErr,
		LastFetch:         fetched,
	}
}
