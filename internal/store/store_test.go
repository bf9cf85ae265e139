// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{Path: t.TempDir(), SyncWrites: false})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func sampleAt(owner string, at time.Time) *models.LocationSample {
	return &models.LocationSample{
		OwnerID:    owner,
		Latitude:   52.3676,
		Longitude:  4.9041,
		Speed:      1.2,
		Status:     models.StatusWalking,
		CapturedAt: at,
	}
}

func TestStoreNotReadyAfterClose(t *testing.T) {
	s, err := Open(config.StoreConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.SaveLocation(sampleAt("u1", time.Now())); !errors.Is(err, ErrNotReady) {
		t.Errorf("SaveLocation after Close = %v, want ErrNotReady", err)
	}
	if _, err := s.QueuedUpdates(); !errors.Is(err, ErrNotReady) {
		t.Errorf("QueuedUpdates after Close = %v, want ErrNotReady", err)
	}
	// Double close must be a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)

	u := &models.UserRecord{ID: "u1", Email: "ada@example.com", DisplayName: "Ada"}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
	got, err := s.User("u1")
	if err != nil {
		t.Fatalf("User() error = %v", err)
	}
	if got.Email != "ada@example.com" || got.DisplayName != "Ada" {
		t.Errorf("User() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("SaveUser did not stamp timestamps")
	}

	// Upsert with the same id must replace, not duplicate.
	u.DisplayName = "Ada L."
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("SaveUser() upsert error = %v", err)
	}
	got, err = s.User("u1")
	if err != nil {
		t.Fatalf("User() after upsert error = %v", err)
	}
	if got.DisplayName != "Ada L." {
		t.Errorf("DisplayName after upsert = %q, want %q", got.DisplayName, "Ada L.")
	}

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := s.User("u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("User() after delete = %v, want ErrNotFound", err)
	}
}

func TestLatestLocationPicksNewest(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.SaveLocation(sampleAt("u1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveLocation() error = %v", err)
		}
	}
	// Other owners must not leak into u1's history.
	if err := s.SaveLocation(sampleAt("u2", base.Add(time.Hour))); err != nil {
		t.Fatalf("SaveLocation() error = %v", err)
	}

	latest, err := s.LatestLocation("u1")
	if err != nil {
		t.Fatalf("LatestLocation() error = %v", err)
	}
	want := base.Add(4 * time.Minute)
	if !latest.CapturedAt.Equal(want) {
		t.Errorf("LatestLocation().CapturedAt = %v, want %v", latest.CapturedAt, want)
	}

	if _, err := s.LatestLocation("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestLocation(nobody) = %v, want ErrNotFound", err)
	}
}

func TestLocationsByOwnerNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := s.SaveLocation(sampleAt("u1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("SaveLocation() error = %v", err)
		}
	}
	history, err := s.LocationsByOwner("u1")
	if err != nil {
		t.Fatalf("LocationsByOwner() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].CapturedAt.After(history[i-1].CapturedAt) {
			t.Errorf("history not newest-first at index %d", i)
		}
	}
}

func TestOwnersExcludesQueuedSentinel(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	for _, owner := range []string{"u1", "u2", models.QueuedOwner} {
		if err := s.SaveLocation(sampleAt(owner, now)); err != nil {
			t.Fatalf("SaveLocation(%s) error = %v", owner, err)
		}
	}
	owners, err := s.Owners()
	if err != nil {
		t.Fatalf("Owners() error = %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("len(Owners()) = %d, want 2", len(owners))
	}
	if _, ok := owners[models.QueuedOwner]; ok {
		t.Error("Owners() must exclude the queued sentinel")
	}
}

func TestPruneLocationsKeepsNewest(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := s.SaveLocation(sampleAt("u1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("SaveLocation() error = %v", err)
		}
	}
	removed, err := s.PruneLocations("u1", 4)
	if err != nil {
		t.Fatalf("PruneLocations() error = %v", err)
	}
	if removed != 6 {
		t.Errorf("removed = %d, want 6", removed)
	}
	history, err := s.LocationsByOwner("u1")
	if err != nil {
		t.Fatalf("LocationsByOwner() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("len(history) after prune = %d, want 4", len(history))
	}
	// Newest sample must survive.
	if !history[0].CapturedAt.Equal(base.Add(9 * time.Second)) {
		t.Errorf("newest surviving sample = %v", history[0].CapturedAt)
	}
}

func TestSettingsUpdateIsAtomicUpsert(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateSettings("u1", func(rec *models.SettingsRecord) {
		rec.GhostMode = true
		rec.Theme = "dark"
	})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	rec, err := s.Settings("u1")
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if !rec.GhostMode || rec.Theme != "dark" {
		t.Errorf("Settings() = %+v", rec)
	}

	// A second update must preserve untouched fields.
	err = s.UpdateSettings("u1", func(rec *models.SettingsRecord) {
		rec.DoNotDisturb = true
	})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	rec, err = s.Settings("u1")
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if !rec.GhostMode || !rec.DoNotDisturb {
		t.Errorf("Settings() after second update = %+v", rec)
	}
}

func TestQueueFIFOAndDelete(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		q := &models.QueuedUpdate{
			EnqueuedAt: base.Add(time.Duration(i) * time.Millisecond),
			Sample:     *sampleAt(models.QueuedOwner, base),
		}
		q.Sample.Latitude = float64(i)
		if err := s.AppendQueued(q); err != nil {
			t.Fatalf("AppendQueued() error = %v", err)
		}
	}
	pending, err := s.QueuedUpdates()
	if err != nil {
		t.Fatalf("QueuedUpdates() error = %v", err)
	}
	if len(pending) != 5 {
		t.Fatalf("len(pending) = %d, want 5", len(pending))
	}
	for i, q := range pending {
		if q.Sample.Latitude != float64(i) {
			t.Errorf("pending[%d].Latitude = %v, want %v (FIFO order broken)", i, q.Sample.Latitude, i)
		}
	}

	if err := s.DeleteQueued(&pending[0]); err != nil {
		t.Fatalf("DeleteQueued() error = %v", err)
	}
	count, err := s.QueuedCount()
	if err != nil {
		t.Fatalf("QueuedCount() error = %v", err)
	}
	if count != 4 {
		t.Errorf("QueuedCount() = %d, want 4", count)
	}
	// Deleting twice is a no-op.
	if err := s.DeleteQueued(&pending[0]); err != nil {
		t.Errorf("second DeleteQueued() error = %v", err)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(config.StoreConfig{Path: dir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	q := &models.QueuedUpdate{Sample: *sampleAt(models.QueuedOwner, time.Now())}
	if err := s.AppendQueued(q); err != nil {
		t.Fatalf("AppendQueued() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = Open(config.StoreConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	pending, err := s.QueuedUpdates()
	if err != nil {
		t.Fatalf("QueuedUpdates() after reopen error = %v", err)
	}
	if len(pending) != 1 || pending[0].QueueID != q.QueueID {
		t.Errorf("pending after reopen = %+v", pending)
	}
}

func TestTrimQueuedDropsOldest(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		q := &models.QueuedUpdate{
			QueueID:    fmt.Sprintf("q-%d", i),
			EnqueuedAt: base.Add(time.Duration(i) * time.Second),
			Sample:     *sampleAt(models.QueuedOwner, base),
		}
		if err := s.AppendQueued(q); err != nil {
			t.Fatalf("AppendQueued() error = %v", err)
		}
	}
	dropped, err := s.TrimQueued(5)
	if err != nil {
		t.Fatalf("TrimQueued() error = %v", err)
	}
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	pending, err := s.QueuedUpdates()
	if err != nil {
		t.Fatalf("QueuedUpdates() error = %v", err)
	}
	if len(pending) != 5 {
		t.Fatalf("len(pending) = %d, want 5", len(pending))
	}
	if pending[0].QueueID != "q-3" {
		t.Errorf("oldest surviving entry = %s, want q-3", pending[0].QueueID)
	}
}

func TestUpdateQueuedPreservesPosition(t *testing.T) {
	s := newTestStore(t)

	q := &models.QueuedUpdate{Sample: *sampleAt(models.QueuedOwner, time.Now())}
	if err := s.AppendQueued(q); err != nil {
		t.Fatalf("AppendQueued() error = %v", err)
	}
	q.Attempts = 2
	q.LastError = "gateway timeout"
	if err := s.UpdateQueued(q); err != nil {
		t.Fatalf("UpdateQueued() error = %v", err)
	}
	pending, err := s.QueuedUpdates()
	if err != nil {
		t.Fatalf("QueuedUpdates() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].Attempts != 2 || pending[0].LastError != "gateway timeout" {
		t.Errorf("pending[0] = %+v", pending[0])
	}
}
