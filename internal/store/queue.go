// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mapic/locsync/internal/models"
)

// Queue keyspace. Entries are keyed by enqueue time so a forward prefix scan
// yields strict FIFO order, and each key embeds the queue id so a drained
// entry can be deleted without rescanning.

// AppendQueued durably appends an update to the tail of the offline queue.
// A zero QueueID or EnqueuedAt is filled in.
func (s *Store) AppendQueued(q *models.QueuedUpdate) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	if q.QueueID == "" {
		q.QueueID = uuid.New().String()
	}
	if q.EnqueuedAt.IsZero() {
		q.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal queued update: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(q.EnqueuedAt, q.QueueID), data)
	})
}

// QueuedUpdates returns every pending update in FIFO order.
func (s *Store) QueuedUpdates() ([]models.QueuedUpdate, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var pending []models.QueuedUpdate
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixQueue)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var q models.QueuedUpdate
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &q)
			}); err != nil {
				return fmt.Errorf("unmarshal queued update %s: %w", it.Item().Key(), err)
			}
			pending = append(pending, q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// DeleteQueued removes one entry after successful delivery. Deleting an entry
// that is already gone is not an error.
func (s *Store) DeleteQueued(q *models.QueuedUpdate) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(queueKey(q.EnqueuedAt, q.QueueID))
	})
}

// UpdateQueued rewrites an entry in place, preserving its queue position.
// Used to record failed delivery attempts.
func (s *Store) UpdateQueued(q *models.QueuedUpdate) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal queued update: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(q.EnqueuedAt, q.QueueID), data)
	})
}

// QueuedCount returns the number of pending entries.
func (s *Store) QueuedCount() (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}
	count := 0
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixQueue)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TrimQueued enforces the queue bound by dropping the oldest entries until at
// most max remain, returning how many were dropped.
func (s *Store) TrimQueued(max int) (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}
	dropped := 0
	err = db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixQueue)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		excess := len(keys) - max
		for i := 0; i < excess; i++ {
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dropped, nil
}

// ClearQueued drops every pending entry. Only used by tests and operator
// tooling.
func (s *Store) ClearQueued() (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}
	cleared := 0
	err = db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixQueue)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

func queueKey(enqueuedAt time.Time, queueID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixQueue, enqueuedAt.UnixNano(), queueID))
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
