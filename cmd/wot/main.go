// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command wot starts the web-of-trust daemon.
//
// The daemon maintains a durable trust graph, derives per-own-identity
// score trees incrementally, and serves them over a REST API, a keyed
// field protocol endpoint, and a websocket with durable subscriptions.
//
// Usage:
//
//	go run ./cmd/wot
//	go run ./cmd/wot -config /etc/wot/config.yaml
//	go run ./cmd/wot -listen :9000 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8889/health
//
//	# Create an own identity
//	curl -X POST http://localhost:8889/v1/identities/own \
//	  -H "Content-Type: application/json" \
//	  -d '{"insert_uri": "USK@.../WebOfTrust/0", "nickname": "alice"}'
//
//	# Assign trust
//	curl -X PUT http://localhost:8889/v1/trusts \
//	  -H "Content-Type: application/json" \
//	  -d '{"truster": "<id>", "trustee_uri": "USK@.../WebOfTrust/0", "value": 75}'
//
//	# Read the score tree
//	curl http://localhost:8889/v1/scores/<id> | jq
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianWoT/pkg/logging"
	"github.com/AleutianAI/AleutianWoT/services/wot"
	"github.com/AleutianAI/AleutianWoT/services/wot/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (built-in defaults when empty)")
	listenAddr := flag.String("listen", "", "Listen address override, e.g. :8889")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Default().Error("load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *debug {
		cfg.Server.Mode = "debug"
		cfg.Logging.Level = "debug"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		JSON:    cfg.Logging.JSON,
		Service: "wot",
	})
	defer logger.Close()
	slog := logger.Slog()

	gin.SetMode(cfg.Server.Mode)

	svc, err := wot.New(cfg, slog)
	if err != nil {
		slog.Error("start web-of-trust service", "error", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == "debug" {
		router.Use(gin.Logger())
	}
	wot.SetupRoutes(router, svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go svc.RunMaintenance(ctx)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("web-of-trust daemon listening", "address", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := svc.Close(); err != nil {
		slog.Error("service shutdown", "error", err)
	}
	slog.Info("goodbye")
}
