// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger provides factory functions and lifecycle management for the
// embedded BadgerDB instance backing the tile store.
//
// Tiles are derived data: every entry can be regenerated from the floor-plan
// source, so the defaults favor throughput over durability (async writes,
// aggressive value-log GC). Nothing irreplaceable lives here.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the embedded tile database.
type Config struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory disables disk persistence. Used in tests and for terminals
	// that regenerate their tile set on every boot.
	InMemory bool

	// SyncWrites forces an fsync per write. Off by default: tiles are
	// regenerable and the write path is hot during bulk generation.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often value-log garbage collection runs.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage fraction that triggers a
	// value-log rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a persistent tile database.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     false,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with GC lifecycle management.
//
// The embedded *badger.DB is safe for concurrent use; Close stops the GC
// runner before closing the database.
type DB struct {
	*badger.DB
	gc       *gcRunner
	path     string
	inMemory bool
}

// Open opens a tile database with the given configuration, creating the
// directory if needed and starting the GC runner when configured.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent tile database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create tile database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open tile database: %w", err)
	}

	wrapped := &DB{
		DB:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		wrapped.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		wrapped.gc.start()
	}
	return wrapped, nil
}

// OpenInMemory opens a throwaway in-memory database for tests.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Close stops the GC runner and closes the database. Safe to call once.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.stop()
	}
	return d.DB.Close()
}

// Path returns the database directory, or empty for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// InMemory reports whether this database has no disk persistence.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// WithTxn runs fn inside a read-write transaction, committing on nil error.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// DeletePrefix removes every key under prefix. Used to purge a floor's
// tiles before regeneration.
func (d *DB) DeletePrefix(ctx context.Context, prefix []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return d.DB.DropPrefix(prefix)
}

// gcRunner periodically triggers value-log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		if r.logger != nil {
			r.logger.Debug("tile database value log GC completed")
		}
	case errors.Is(err, badger.ErrNoRewrite):
		// Nothing to collect.
	default:
		if r.logger != nil {
			r.logger.Warn("tile database value log GC error", slog.String("error", err.Error()))
		}
	}
}
