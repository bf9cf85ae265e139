// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package poller drives periodic peer-location fetches at a cadence that
// follows the app lifecycle: fast while foregrounded, slow in the
// background. Every successful fetch is written through to the local store
// so the cache always holds the last good snapshot; when a fetch fails, the
// poller serves that snapshot marked stale instead of failing the read.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/metrics"
	"github.com/mapic/locsync/internal/models"
	"github.com/mapic/locsync/internal/power"
	"github.com/mapic/locsync/internal/store"
)

// Fetcher is the gateway operation the poller depends on.
type Fetcher interface {
	FetchPeerLocations(ctx context.Context) ([]models.LocationSample, error)
}

// Poller owns the fetch loop. Start and Stop are idempotent; interval
// changes swap the ticker without overlapping loops.
type Poller struct {
	fetcher Fetcher
	store   *store.Store
	cfg     config.PollerConfig

	mu       sync.Mutex
	running  bool
	interval time.Duration
	reset    chan time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New creates a poller in the stopped state at the foreground cadence.
func New(fetcher Fetcher, st *store.Store, cfg config.PollerConfig) *Poller {
	return &Poller{
		fetcher:  fetcher,
		store:    st,
		cfg:      cfg,
		interval: cfg.ForegroundInterval,
	}
}

// Start launches the poll loop with an immediate first fetch. Calling Start
// on a running poller is a no-op; there is never more than one loop.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.reset = make(chan time.Duration, 1)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	interval := p.interval
	reset, stop, done := p.reset, p.stop, p.done
	p.mu.Unlock()

	logging.Info().Dur("interval", interval).Msg("poller: started")
	go p.loop(interval, reset, stop, done)
}

// Stop halts the loop and waits for it to exit. Safe to call repeatedly and
// while stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
	logging.Info().Msg("poller: stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the current poll cadence.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// UpdateInterval changes the cadence. A running loop picks the new interval
// up on its next cycle boundary without dropping or doubling a tick.
func (p *Poller) UpdateInterval(interval time.Duration) {
	p.mu.Lock()
	if interval == p.interval {
		p.mu.Unlock()
		return
	}
	p.interval = interval
	running := p.running
	reset := p.reset
	p.mu.Unlock()

	logging.Info().Dur("interval", interval).Msg("poller: interval changed")
	if running {
		select {
		case reset <- interval:
		default:
			// A pending reset is superseded; drain and replace.
			select {
			case <-reset:
			default:
			}
			reset <- interval
		}
	}
}

// FollowAppState subscribes the poller to lifecycle changes: background
// slows the cadence, foreground restores it. Returns the unsubscribe
// function.
func (p *Poller) FollowAppState(monitor *power.Monitor) func() {
	return monitor.OnAppStateChange(func(state power.AppState) {
		if state == power.Background {
			p.UpdateInterval(p.cfg.BackgroundInterval)
		} else {
			p.UpdateInterval(p.cfg.ForegroundInterval)
		}
	})
}

func (p *Poller) loop(interval time.Duration, reset chan time.Duration, stop, done chan struct{}) {
	defer close(done)

	p.poll(context.Background())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll(context.Background())
		case next := <-reset:
			ticker.Reset(next)
		case <-stop:
			return
		}
	}
}

// poll performs one fetch pass and logs the outcome. Errors never escape the
// loop; the cache-fallback result is already the degraded answer.
func (p *Poller) poll(ctx context.Context) {
	samples, err := p.Fetch(ctx)
	if err != nil {
		logging.Debug().Err(err).Int("cached", len(samples)).Msg("poller: fetch failed, served cache")
	}
}

// Fetch retrieves peer locations, preferring the backend and falling back to
// the local cache. On success the snapshot is written through to the store
// (best effort) and returned fresh. On failure the latest cached sample per
// owner is returned marked stale, together with the fetch error so callers
// can surface degraded state. Fetch never returns an empty result when the
// cache has data.
func (p *Poller) Fetch(ctx context.Context) ([]models.LocationSample, error) {
	samples, err := p.fetcher.FetchPeerLocations(ctx)
	if err == nil {
		metrics.PollResults.WithLabelValues("fresh").Inc()
		for i := range samples {
			cached := samples[i]
			if cacheErr := p.store.SaveLocation(&cached); cacheErr != nil {
				logging.Warn().Err(cacheErr).Str("owner", cached.OwnerID).Msg("poller: failed to cache sample")
				continue
			}
			metrics.CacheWrites.Inc()
		}
		return samples, nil
	}

	metrics.PollResults.WithLabelValues("cache_fallback").Inc()
	cached, cacheErr := p.cachedSnapshot()
	if cacheErr != nil {
		logging.Warn().Err(cacheErr).Msg("poller: cache fallback failed")
		return nil, err
	}
	return cached, err
}

// cachedSnapshot assembles the latest sample per known owner, marked stale.
func (p *Poller) cachedSnapshot() ([]models.LocationSample, error) {
	owners, err := p.store.Owners()
	if err != nil {
		return nil, err
	}
	snapshot := make([]models.LocationSample, 0, len(owners))
	for owner := range owners {
		latest, err := p.store.LatestLocation(owner)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		latest.Status = models.StatusOffline
		snapshot = append(snapshot, *latest)
	}
	return snapshot, nil
}
