// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package power tracks the host app lifecycle state and battery level. The
// poller subscribes to app-state changes to pick its cadence; the UI layer
// reads AnimationsEnabled. Battery level never influences poll cadence, only
// rendering effects.
package power

import (
	"sync"

	"github.com/mapic/locsync/internal/logging"
)

// AppState is the host application's lifecycle state.
type AppState string

const (
	// Foreground means the app is active and visible.
	Foreground AppState = "foreground"
	// Background means the app is backgrounded or the screen is off.
	Background AppState = "background"
)

// LowBatteryThreshold is the default fraction below which battery-saving
// effects kick in.
const LowBatteryThreshold = 0.20

// Monitor holds the current app state and battery level, and notifies
// subscribers on changes. Safe for concurrent use.
type Monitor struct {
	mu          sync.Mutex
	state       AppState
	battery     float64
	threshold   float64
	nextSubID   int
	stateSubs   map[int]func(AppState)
	batterySubs map[int]func(float64)
}

// NewMonitor creates a monitor that assumes a foregrounded app on a full
// battery until told otherwise.
func NewMonitor(threshold float64) *Monitor {
	if threshold <= 0 {
		threshold = LowBatteryThreshold
	}
	return &Monitor{
		state:       Foreground,
		battery:     1.0,
		threshold:   threshold,
		stateSubs:   make(map[int]func(AppState)),
		batterySubs: make(map[int]func(float64)),
	}
}

// State returns the current app state.
func (m *Monitor) State() AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InBackground reports whether the app is backgrounded.
func (m *Monitor) InBackground() bool {
	return m.State() == Background
}

// BatteryLevel returns the last reported level in [0, 1].
func (m *Monitor) BatteryLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery
}

// LowBattery reports whether the level is below the configured threshold.
func (m *Monitor) LowBattery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.battery < m.threshold
}

// AnimationsEnabled reports whether battery-intensive rendering effects
// should run. Disabled on low battery; sync behavior is unaffected.
func (m *Monitor) AnimationsEnabled() bool {
	return !m.LowBattery()
}

// SetAppState records a lifecycle change and notifies state subscribers on
// transitions only.
func (m *Monitor) SetAppState(state AppState) {
	m.mu.Lock()
	if state == m.state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]func(AppState), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	logging.Debug().Str("state", string(state)).Msg("power: app state changed")
	for _, fn := range subs {
		fn(state)
	}
}

// SetBatteryLevel records a battery reading in [0, 1]; out-of-range values
// are clamped.
func (m *Monitor) SetBatteryLevel(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	m.mu.Lock()
	if level == m.battery {
		m.mu.Unlock()
		return
	}
	wasLow := m.battery < m.threshold
	m.battery = level
	isLow := level < m.threshold
	subs := make([]func(float64), 0, len(m.batterySubs))
	for _, fn := range m.batterySubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if wasLow != isLow {
		logging.Info().Float64("level", level).Bool("low", isLow).Msg("power: battery threshold crossed")
	}
	for _, fn := range subs {
		fn(level)
	}
}

// OnAppStateChange registers a subscriber. The returned function
// unsubscribes.
func (m *Monitor) OnAppStateChange(fn func(AppState)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.stateSubs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.stateSubs, id)
		m.mu.Unlock()
	}
}

// OnBatteryChange registers a subscriber. The returned function
// unsubscribes.
func (m *Monitor) OnBatteryChange(fn func(float64)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.batterySubs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.batterySubs, id)
		m.mu.Unlock()
	}
}
