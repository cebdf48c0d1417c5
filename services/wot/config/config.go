// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for the web-of-trust
// daemon.
//
// A default configuration is embedded in the binary for deployment
// simplicity; an operator file overrides it. Files are size-limited and
// strictly parsed (unknown keys are errors), then validated.
//
// Thread Safety:
//
//	Load returns a value; the caller owns it. All exported functions are
//	safe for concurrent use.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize is the maximum allowed config file size (1MB).
// Prevents memory issues from accidentally pointing at a large file.
const MaxConfigFileSize = 1024 * 1024

//go:embed config.yaml
var defaultConfigYAML []byte

// Duration wraps time.Duration so YAML files can say "5m" instead of
// nanosecond integers.
type Duration time.Duration

// UnmarshalYAML parses a duration string like "90s" or "1h30m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	// ListenAddr is the address the daemon binds, e.g. ":8889".
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// Mode is the gin mode: debug, release, or test.
	Mode string `yaml:"mode" validate:"oneof=debug release test"`
}

// StorageConfig configures the BadgerDB layer.
type StorageConfig struct {
	// DataDir is the directory for database files. Supports ~ expansion.
	DataDir string `yaml:"data_dir" validate:"required"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value log garbage collection runs.
	GCInterval Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum garbage ratio that triggers GC.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// LogDir enables file logging when non-empty.
	LogDir string `yaml:"log_dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `yaml:"json"`
}

// SubscriptionConfig configures event delivery.
type SubscriptionConfig struct {
	// SynchronizationTimeout bounds the snapshot handshake.
	SynchronizationTimeout Duration `yaml:"synchronization_timeout"`

	// AckTimeout bounds each notification delivery attempt.
	AckTimeout Duration `yaml:"ack_timeout"`

	// RetryDelay is the pause between redelivery attempts.
	RetryDelay Duration `yaml:"retry_delay"`

	// MaxFailures force-terminates a subscription after this many
	// consecutive delivery failures.
	MaxFailures int `yaml:"max_failures" validate:"min=1"`
}

// MaintenanceConfig configures periodic background work.
type MaintenanceConfig struct {
	// VerifyInterval is how often the score trees are verified against a
	// from-scratch recomputation. Zero disables verification.
	VerifyInterval Duration `yaml:"verify_interval"`
}

// Config is the daemon's full configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" validate:"required"`
	Storage      StorageConfig      `yaml:"storage" validate:"required"`
	Logging      LoggingConfig      `yaml:"logging"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
}

var validate = validator.New()

// Default returns the embedded default configuration.
func Default() (Config, error) {
	return parse(defaultConfigYAML)
}

// Load reads and validates a configuration file. An empty path loads the
// embedded default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)",
			info.Size(), MaxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
