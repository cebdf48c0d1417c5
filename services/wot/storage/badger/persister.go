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
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
)

// Key prefixes for the three row families. Identity IDs are routing keys
// ([A-Za-z0-9~_-]) and can never contain the separator.
const (
	identityPrefix = "i/"
	trustPrefix    = "t/"
	scorePrefix    = "s/"
	keySeparator   = "/"
)

// GraphPersister stores graph rows in BadgerDB as JSON values. It
// implements graph.Persister.
//
// Writes happen inside the graph store's critical section, so each row is
// written in its own transaction; batching is not needed at web-of-trust
// update rates.
type GraphPersister struct {
	db *badger.DB
}

// NewGraphPersister creates a persister backed by the given database.
func NewGraphPersister(db *badger.DB) *GraphPersister {
	return &GraphPersister{db: db}
}

func identityKey(id string) []byte {
	return []byte(identityPrefix + id)
}

func trustKey(trusterID, trusteeID string) []byte {
	return []byte(trustPrefix + trusterID + keySeparator + trusteeID)
}

func scoreKey(ownerID, targetID string) []byte {
	return []byte(scorePrefix + ownerID + keySeparator + targetID)
}

func (p *GraphPersister) putJSON(key []byte, row any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row %s: %w", key, err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (p *GraphPersister) delete(key []byte) error {
	return p.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// PutIdentity writes an identity row.
func (p *GraphPersister) PutIdentity(i *graph.Identity) error {
	return p.putJSON(identityKey(i.ID), i)
}

// DeleteIdentity removes an identity row.
func (p *GraphPersister) DeleteIdentity(id string) error {
	return p.delete(identityKey(id))
}

// PutTrust writes a trust edge row.
func (p *GraphPersister) PutTrust(t *graph.Trust) error {
	return p.putJSON(trustKey(t.TrusterID, t.TrusteeID), t)
}

// DeleteTrust removes a trust edge row.
func (p *GraphPersister) DeleteTrust(trusterID, trusteeID string) error {
	return p.delete(trustKey(trusterID, trusteeID))
}

// PutScore writes a score row.
func (p *GraphPersister) PutScore(s *graph.Score) error {
	return p.putJSON(scoreKey(s.OwnerID, s.TargetID), s)
}

// DeleteScore removes a score row.
func (p *GraphPersister) DeleteScore(ownerID, targetID string) error {
	return p.delete(scoreKey(ownerID, targetID))
}

// LoadAll reads every stored row. Called once at startup before the graph
// store rebuilds its score trees.
func (p *GraphPersister) LoadAll() ([]*graph.Identity, []*graph.Trust, []*graph.Score, error) {
	var (
		identities []*graph.Identity
		trusts     []*graph.Trust
		scores     []*graph.Score
	)

	err := p.db.View(func(txn *badger.Txn) error {
		if err := scanPrefix(txn, identityPrefix, func(data []byte) error {
			var row graph.Identity
			if err := json.Unmarshal(data, &row); err != nil {
				return fmt.Errorf("unmarshal identity row: %w", err)
			}
			identities = append(identities, &row)
			return nil
		}); err != nil {
			return err
		}
		if err := scanPrefix(txn, trustPrefix, func(data []byte) error {
			var row graph.Trust
			if err := json.Unmarshal(data, &row); err != nil {
				return fmt.Errorf("unmarshal trust row: %w", err)
			}
			trusts = append(trusts, &row)
			return nil
		}); err != nil {
			return err
		}
		return scanPrefix(txn, scorePrefix, func(data []byte) error {
			var row graph.Score
			if err := json.Unmarshal(data, &row); err != nil {
				return fmt.Errorf("unmarshal score row: %w", err)
			}
			scores = append(scores, &row)
			return nil
		})
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return identities, trusts, scores, nil
}

// scanPrefix iterates all values under a key prefix within a transaction.
func scanPrefix(txn *badger.Txn, prefix string, fn func(data []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

var _ graph.Persister = (*GraphPersister)(nil)
