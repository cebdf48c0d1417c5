// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wot assembles the web-of-trust daemon: the durable storage
// layer, the in-memory trust graph with its score engine, the
// subscription manager, and the HTTP/websocket surface.
package wot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianWoT/services/wot/config"
	"github.com/AleutianAI/AleutianWoT/services/wot/fcp"
	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
	storage "github.com/AleutianAI/AleutianWoT/services/wot/storage/badger"
	"github.com/AleutianAI/AleutianWoT/services/wot/subscription"
)

// Service wires the daemon's components together. Create with New, shut
// down with Close.
type Service struct {
	cfg    config.Config
	logger *slog.Logger

	db         *storage.DB
	store      *graph.Store
	subs       *subscription.Manager
	dispatcher *fcp.Dispatcher
}

// New builds a Service from configuration: opens the database, restores
// the graph, rebuilds every score tree, and starts the subscription
// manager. The returned service is ready to serve.
func New(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := storage.OpenDB(storage.Config{
		Path:              expandPath(cfg.Storage.DataDir),
		SyncWrites:        cfg.Storage.SyncWrites,
		NumVersionsToKeep: 1,
		GCInterval:        cfg.Storage.GCInterval.Std(),
		GCDiscardRatio:    cfg.Storage.GCDiscardRatio,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	subs, err := subscription.NewManager(subscription.Options{
		Queue:                  storage.NewNotificationQueue(db.DB),
		Logger:                 logger,
		SynchronizationTimeout: cfg.Subscription.SynchronizationTimeout.Std(),
		AckTimeout:             cfg.Subscription.AckTimeout.Std(),
		RetryDelay:             cfg.Subscription.RetryDelay.Std(),
		MaxFailures:            cfg.Subscription.MaxFailures,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create subscription manager: %w", err)
	}

	store := graph.NewStore(graph.Options{
		Events:    subs,
		Persister: storage.NewGraphPersister(db.DB),
		Logger:    logger,
	})
	if err := store.Load(); err != nil {
		subs.Close()
		db.Close()
		return nil, fmt.Errorf("restore trust graph: %w", err)
	}

	logger.Info("trust graph restored",
		"identities", len(store.AllIdentities()),
		"own_identities", len(store.OwnIdentities()))

	return &Service{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      store,
		subs:       subs,
		dispatcher: fcp.NewDispatcher(store, logger),
	}, nil
}

// Store exposes the trust graph.
func (s *Service) Store() *graph.Store {
	return s.store
}

// Subscriptions exposes the subscription manager.
func (s *Service) Subscriptions() *subscription.Manager {
	return s.subs
}

// Close stops subscription delivery and closes the database. The durable
// rows and undelivered notification queues survive for the next start.
func (s *Service) Close() error {
	var firstErr error
	if err := s.subs.Close(); err != nil {
		firstErr = fmt.Errorf("close subscription manager: %w", err)
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close storage: %w", err)
	}
	return firstErr
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
