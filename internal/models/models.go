// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package models defines the records persisted by the local store and
// exchanged with the location API.
package models

import "time"

// QueuedOwner is the sentinel owner id marking location samples that were
// captured locally but not yet delivered to the server. Queued samples are
// logically distinct from confirmed samples with the same coordinates.
const QueuedOwner = "QUEUED"

// Status values reported with a location sample. The server may report any
// free-form status; these are the ones the client itself produces.
const (
	StatusStationary = "stationary"
	StatusWalking    = "walking"
	StatusBiking     = "biking"
	StatusDriving    = "driving"

	// StatusOffline marks cache-derived samples returned when the server is
	// unreachable, so callers can tell stale data from live data.
	StatusOffline = "offline"
)

// LocationSample is a single observed position for one owner.
type LocationSample struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"userId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	Accuracy   float64   `json:"accuracy"`
	Status     string    `json:"status,omitempty"`
	CapturedAt time.Time `json:"timestamp"`
}

// Stale reports whether the sample came from the cache-fallback path rather
// than a live server response.
func (s *LocationSample) Stale() bool {
	return s.Status == StatusOffline
}

// QueuedUpdate is a LocationSample held in the offline write queue. The
// embedded sample keeps owner QueuedOwner until delivery.
type QueuedUpdate struct {
	QueueID    string         `json:"queueId"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"lastError,omitempty"`
	Sample     LocationSample `json:"sample"`
}

// UserRecord is one known user (self or friend), upserted by id.
type UserRecord struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SettingsRecord holds per-owner preferences. At most one record per owner.
type SettingsRecord struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"userId"`
	GhostMode     bool      `json:"ghostMode"`
	DoNotDisturb  bool      `json:"doNotDisturb"`
	ShareLocation bool      `json:"shareLocation"`
	Theme         string    `json:"theme"`
	Language      string    `json:"language"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
