// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package store implements the durable local store backing the sync core.
//
// All records live in a single BadgerDB keyspace, partitioned by prefix:
//
//	user:<id>                          UserRecord
//	settings:<ownerId>                 SettingsRecord
//	loc:<ownerId>:<capturedAt>:<id>    LocationSample (full history per owner)
//	queue:<enqueuedAt>:<queueId>       QueuedUpdate (FIFO offline write queue)
//
// Timestamps in keys are zero-padded nanoseconds so lexicographic key order
// equals chronological order; latest-per-owner reads are a reverse prefix
// scan and queue drains are a forward scan. Every mutation runs inside a
// Badger update transaction, which commits or rolls back atomically on all
// exit paths.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/models"
)

const (
	prefixUser     = "user:"
	prefixSettings = "settings:"
	prefixLocation = "loc:"
	prefixQueue    = "queue:"
)

var (
	// ErrNotReady is returned when the store is used before Open or after
	// Close. Callers treat this as recoverable by skipping the optional
	// cache step; only startup treats it as fatal.
	ErrNotReady = errors.New("store not ready")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store is the durable on-device store for users, locations, settings and the
// offline write queue. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// Open opens (or creates) the store at the configured path.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", cfg.Path, err)
	}

	logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("local store opened")
	return &Store{db: db}, nil
}

// Close shuts the store down. Subsequent operations return ErrNotReady.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	logging.Info().Msg("local store closed")
	return nil
}

// database returns the live DB handle or ErrNotReady.
func (s *Store) database() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil || s.closed {
		return nil, ErrNotReady
	}
	return s.db, nil
}

// RunGC triggers Badger value-log garbage collection until no further space
// can be reclaimed.
func (s *Store) RunGC() error {
	db, err := s.database()
	if err != nil {
		return err
	}
	for {
		err := db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// SaveUser inserts or replaces a user record by id. Idempotent for the same
// id and payload.
func (s *Store) SaveUser(u *models.UserRecord) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if u.Status == "" {
		u.Status = "online"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixUser+u.ID), data)
	})
}

// User returns the user record for id, or ErrNotFound.
func (s *Store) User(id string) (*models.UserRecord, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var u models.UserRecord
	err = db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixUser+id, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user record. Deleting a missing user is not an error.
func (s *Store) DeleteUser(id string) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixUser + id))
	})
}

// SaveSettings upserts the settings record for its owner. At most one record
// per owner is kept.
func (s *Store) SaveSettings(rec *models.SettingsRecord) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	if rec.OwnerID == "" {
		return errors.New("settings owner id is required")
	}
	if rec.ID == "" {
		rec.ID = rec.OwnerID
	}
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixSettings+rec.OwnerID), data)
	})
}

// Settings returns the settings for owner, or ErrNotFound.
func (s *Store) Settings(ownerID string) (*models.SettingsRecord, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var rec models.SettingsRecord
	err = db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixSettings+ownerID, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateSettings applies fn to the owner's settings inside a single
// transaction, so the read-modify-write is atomic. Missing settings start
// from a zero record for the owner.
func (s *Store) UpdateSettings(ownerID string, fn func(*models.SettingsRecord)) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		rec := models.SettingsRecord{ID: ownerID, OwnerID: ownerID}
		if err := getJSON(txn, prefixSettings+ownerID, &rec); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		fn(&rec)
		rec.OwnerID = ownerID
		rec.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		return txn.Set([]byte(prefixSettings+ownerID), data)
	})
}

// SaveLocation appends a location sample to the owner's history. Samples are
// never mutated; newer samples supersede older ones only by timestamp order.
// A zero ID or CapturedAt is filled in.
func (s *Store) SaveLocation(sample *models.LocationSample) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	if sample.OwnerID == "" {
		return errors.New("location owner id is required")
	}
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	key := locationKey(sample.OwnerID, sample.CapturedAt, sample.ID)
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// LatestLocation returns the sample with the maximum CapturedAt for the
// owner, or ErrNotFound when the owner has no history.
func (s *Store) LatestLocation(ownerID string) (*models.LocationSample, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var sample models.LocationSample
	found := false
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixLocation + ownerID + ":")
		// Seek past the prefix range, then the first valid key is the newest.
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &sample)
		})
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &sample, nil
}

// LocationsByOwner returns the owner's full history, newest first.
func (s *Store) LocationsByOwner(ownerID string) ([]models.LocationSample, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var samples []models.LocationSample
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixLocation + ownerID + ":")
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var sample models.LocationSample
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("store: skipping malformed location record")
				continue
			}
			samples = append(samples, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// Owners returns the distinct owner ids with location history, excluding the
// queued-sample sentinel. Used to reconstruct the known-peer set for cache
// fallback.
func (s *Store) Owners() (map[string]struct{}, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	owners := make(map[string]struct{})
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixLocation)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, prefixLocation)
			idx := strings.IndexByte(rest, ':')
			if idx <= 0 {
				continue
			}
			owner := rest[:idx]
			if owner == models.QueuedOwner {
				continue
			}
			owners[owner] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// PruneLocations trims an owner's history to the most recent keep samples and
// returns the number removed. Advisory housekeeping, not enforced on writes.
func (s *Store) PruneLocations(ownerID string, keep int) (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}
	removed := 0
	err = db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixLocation + ownerID + ":")
		seen := 0
		var stale [][]byte
		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			seen++
			if seen > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logging.Debug().Str("owner", ownerID).Int("removed", removed).Msg("store: pruned location history")
	}
	return removed, nil
}

// locationKey builds the history key for one sample. The zero-padded
// nanosecond timestamp keeps keys in chronological order.
func locationKey(ownerID string, capturedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixLocation, ownerID, capturedAt.UnixNano(), id))
}

// getJSON reads and unmarshals one key inside txn, mapping Badger's missing
// key error to ErrNotFound.
func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
