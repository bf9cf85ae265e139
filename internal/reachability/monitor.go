// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package reachability tracks whether the device can actually reach the
// backend, folding two signals into one boolean: the network link state and
// end-to-end internet reachability. Reachability is tri-state; before the
// first probe completes it is unknown, and unknown is treated as reachable
// so a fresh link is usable immediately.
package reachability

import (
	"sync"

	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/metrics"
)

// Reachability is the probed end-to-end state.
type Reachability int

const (
	// Unknown means no probe has completed since the last link change.
	Unknown Reachability = iota
	// Reachable means the last probe got a response from the backend.
	Reachable
	// Unreachable means the last probe failed despite the link being up.
	Unreachable
)

// Listener receives the derived online value after each transition.
type Listener func(online bool)

// Monitor derives a single online/offline value and notifies subscribers on
// transitions only. Redundant updates that do not change the derived value
// are swallowed, so subscribers see each edge exactly once, in order.
type Monitor struct {
	mu        sync.Mutex
	linkUp    bool
	reach     Reachability
	online    bool
	nextSubID int
	listeners map[int]Listener
}

// NewMonitor creates a monitor that starts offline with unknown
// reachability.
func NewMonitor() *Monitor {
	return &Monitor{
		listeners: make(map[int]Listener),
	}
}

// Online returns the cached derived value. Never blocks on I/O; decisions
// like the push fast path and drain gating read this.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetLink records a link-layer change (connectivity callback from the host
// platform).
func (m *Monitor) SetLink(up bool) {
	m.mu.Lock()
	m.linkUp = up
	if !up {
		// A dropped link invalidates the last probe result.
		m.reach = Unknown
	}
	listeners, online, changed := m.recomputeLocked()
	m.mu.Unlock()
	if changed {
		notify(listeners, online)
	}
}

// SetReachability records a probe result.
func (m *Monitor) SetReachability(r Reachability) {
	m.mu.Lock()
	m.reach = r
	listeners, online, changed := m.recomputeLocked()
	m.mu.Unlock()
	if changed {
		notify(listeners, online)
	}
}

// Subscribe registers a listener and immediately delivers the current value
// so subscribers never start from a stale default. The returned function
// unsubscribes; it is idempotent.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.listeners[id] = fn
	current := m.online
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// recomputeLocked derives online from the two inputs. online = link up AND
// reachability not known-bad; Unknown counts as reachable. Returns the
// listener snapshot so callers notify after releasing the lock: listeners
// may call back into the monitor.
func (m *Monitor) recomputeLocked() ([]Listener, bool, bool) {
	online := m.linkUp && m.reach != Unreachable
	if online == m.online {
		return nil, online, false
	}
	m.online = online

	if online {
		metrics.ReachabilityOnline.Set(1)
	} else {
		metrics.ReachabilityOnline.Set(0)
	}
	logging.Info().Bool("online", online).Bool("link_up", m.linkUp).Int("reachability", int(m.reach)).Msg("reachability: transition")

	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return listeners, online, true
}

func notify(listeners []Listener, online bool) {
	for _, fn := range listeners {
		fn(online)
	}
}
