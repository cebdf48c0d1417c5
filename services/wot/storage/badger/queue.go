// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrQueueEmpty is returned by Peek when a client has no queued
// notifications.
var ErrQueueEmpty = errors.New("notification queue is empty")

const (
	queuePrefix     = "q/"
	queueMetaPrefix = "qm/"
)

// NotificationQueue is a durable per-client FIFO. The subscription manager
// enqueues one entry per event and acknowledges entries only after the
// client confirmed delivery, so undelivered notifications survive a daemon
// restart.
//
// Entry keys are "q/<client-id>/<seq>" with a big-endian 8-byte sequence
// number, so Badger's lexicographic iteration order is FIFO order. Client
// IDs are UUIDs and can never contain the separator.
type NotificationQueue struct {
	db *badger.DB
}

// NewNotificationQueue creates a queue backed by the given database.
func NewNotificationQueue(db *badger.DB) *NotificationQueue {
	return &NotificationQueue{db: db}
}

func queueEntryKey(clientID string, seq uint64) []byte {
	key := make([]byte, 0, len(queuePrefix)+len(clientID)+1+8)
	key = append(key, queuePrefix...)
	key = append(key, clientID...)
	key = append(key, '/')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func queueMetaKey(clientID string) []byte {
	return []byte(queueMetaPrefix + clientID)
}

func clientPrefix(clientID string) []byte {
	return []byte(queuePrefix + clientID + "/")
}

// Enqueue appends a payload to the client's queue and returns its sequence
// number. Sequence numbers are monotonic per client and never reused, even
// across restarts.
func (q *NotificationQueue) Enqueue(clientID string, payload []byte) (uint64, error) {
	var seq uint64
	err := q.db.Update(func(txn *badger.Txn) error {
		metaKey := queueMetaKey(clientID)
		item, err := txn.Get(metaKey)
		switch {
		case err == badger.ErrKeyNotFound:
			seq = 0
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt queue meta for client %s", clientID)
				}
				seq = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		}

		if err := txn.Set(queueEntryKey(clientID, seq), payload); err != nil {
			return err
		}
		var next [8]byte
		binary.BigEndian.PutUint64(next[:], seq+1)
		return txn.Set(metaKey, next[:])
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue notification: %w", err)
	}
	return seq, nil
}

// Peek returns the oldest queued entry without removing it. Returns
// ErrQueueEmpty when nothing is pending.
func (q *NotificationQueue) Peek(clientID string) (uint64, []byte, error) {
	var (
		seq     uint64
		payload []byte
	)
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = clientPrefix(clientID)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return ErrQueueEmpty
		}
		item := it.Item()
		key := item.Key()
		seq = binary.BigEndian.Uint64(key[len(key)-8:])
		var err error
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return seq, payload, nil
}

// Ack removes a delivered entry. Acknowledging an already-removed entry is
// a no-op.
func (q *NotificationQueue) Ack(clientID string, seq uint64) error {
	return q.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(queueEntryKey(clientID, seq))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Len returns the number of pending entries for a client.
func (q *NotificationQueue) Len(clientID string) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = clientPrefix(clientID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Drop removes all pending entries and the sequence counter for a client.
// Called on unsubscribe.
func (q *NotificationQueue) Drop(clientID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = clientPrefix(clientID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		err := txn.Delete(queueMetaKey(clientID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Clients returns the IDs of all clients with a sequence counter, pending
// entries or not. Used at startup to resume delivery workers.
func (q *NotificationQueue) Clients() ([]string, error) {
	var clients []string
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(queueMetaPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			clients = append(clients, string(key[len(queueMetaPrefix):]))
		}
		return nil
	})
	return clients, err
}
