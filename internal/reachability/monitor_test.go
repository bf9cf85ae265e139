// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package reachability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mapic/locsync/internal/config"
)

func TestDerivedOnlineValue(t *testing.T) {
	tests := []struct {
		name   string
		linkUp bool
		reach  Reachability
		want   bool
	}{
		{"link down, unknown", false, Unknown, false},
		{"link down, reachable", false, Reachable, false},
		{"link up, unknown counts as reachable", true, Unknown, true},
		{"link up, reachable", true, Reachable, true},
		{"link up, unreachable", true, Unreachable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			m.SetLink(tt.linkUp)
			m.SetReachability(tt.reach)
			if got := m.Online(); got != tt.want {
				t.Errorf("Online() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLinkDropResetsReachability(t *testing.T) {
	m := NewMonitor()
	m.SetLink(true)
	m.SetReachability(Unreachable)
	if m.Online() {
		t.Fatal("Online() = true with unreachable backend")
	}

	// Losing and regaining the link must not pin the stale probe result;
	// unknown reachability on a fresh link is usable immediately.
	m.SetLink(false)
	m.SetLink(true)
	if !m.Online() {
		t.Error("Online() = false after link regained, want true (reachability reset to unknown)")
	}
}

func TestSubscribeDeliversCurrentValueImmediately(t *testing.T) {
	m := NewMonitor()
	m.SetLink(true)

	var got []bool
	unsub := m.Subscribe(func(online bool) {
		got = append(got, online)
	})
	defer unsub()

	if len(got) != 1 || got[0] != true {
		t.Fatalf("initial delivery = %v, want [true]", got)
	}
}

func TestOneEventPerTransition(t *testing.T) {
	m := NewMonitor()

	var events []bool
	unsub := m.Subscribe(func(online bool) {
		events = append(events, online)
	})
	defer unsub()
	events = events[:0] // discard the initial delivery

	m.SetLink(true)  // offline -> online
	m.SetLink(true)  // redundant
	m.SetReachability(Reachable) // still online, no event
	m.SetReachability(Unreachable) // online -> offline
	m.SetReachability(Unreachable) // redundant
	m.SetLink(false) // already offline, resets reachability, no event
	m.SetLink(true)  // offline -> online (unknown reachability)

	want := []bool{true, false, true}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMonitor()

	count := 0
	unsub := m.Subscribe(func(bool) { count++ })
	unsub()
	unsub() // idempotent

	m.SetLink(true)
	if count != 1 {
		t.Errorf("deliveries after unsubscribe = %d, want 1 (the initial one)", count)
	}
}

func TestListenerMayCallBackIntoMonitor(t *testing.T) {
	m := NewMonitor()
	done := make(chan bool, 1)
	unsub := m.Subscribe(func(online bool) {
		// Re-entrant read must not deadlock.
		done <- m.Online() == online
	})
	defer unsub()
	<-done

	go m.SetLink(true)
	select {
	case ok := <-done:
		if !ok {
			t.Error("listener observed inconsistent Online() value")
		}
	case <-time.After(time.Second):
		t.Fatal("listener callback deadlocked")
	}
}

func TestProberFeedsMonitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMonitor()
	m.SetLink(true)
	p := NewProber(m, config.ReachabilityConfig{
		ProbeInterval: 10 * time.Millisecond,
		ProbeURL:      srv.URL,
		ProbeTimeout:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	go func() {
		p.Serve(ctx)
		close(serveDone)
	}()

	deadline := time.After(2 * time.Second)
	for !m.Online() {
		select {
		case <-deadline:
			t.Fatal("prober never marked backend reachable")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Kill the backend; the next probe must flip to unreachable.
	srv.Close()
	deadline = time.After(2 * time.Second)
	for m.Online() {
		select {
		case <-deadline:
			t.Fatal("prober never marked backend unreachable")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-serveDone:
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop on cancellation")
	}
}
