// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger manages the embedded BadgerDB instance that backs the
// key-value run store.
//
// Runs are stored one value per key under a "run/<session>/<run_id>" layout,
// so the helpers here are limited to what that layout needs: transactional
// updates, prefix scans, and value log garbage collection for long-lived
// result directories.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = badger.ErrKeyNotFound

// Options configures a run database.
type Options struct {
	// Dir holds the database files. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage fraction that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultOptions returns durable settings for a result directory at dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryOptions returns settings for a throwaway database.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// slogAdapter routes BadgerDB log lines through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (a slogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

// DB is an open run database.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	db       *badger.DB
	gc       *gcLoop
	dir      string
	inMemory bool
}

// Open opens (creating if needed) the database described by opts.
//
// Description:
//
//	Creates Dir with 0750 permissions for persistent databases and starts
//	the GC loop when GCInterval is positive.
//
// Inputs:
//   - opts: Database options. Dir is required unless InMemory is set.
//
// Outputs:
//   - *DB: The open database. Caller must Close it.
//   - error: Non-nil if Dir is missing or BadgerDB fails to open.
func Open(opts Options) (*DB, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: directory is required for a persistent database")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create %s: %w", opts.Dir, err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}

	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(slogAdapter{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	d := &DB{db: bdb, dir: opts.Dir, inMemory: opts.InMemory}
	if opts.GCInterval > 0 && !opts.InMemory {
		if opts.GCDiscardRatio <= 0 || opts.GCDiscardRatio >= 1 {
			_ = bdb.Close()
			return nil, fmt.Errorf("badger: GC discard ratio %v out of range (0, 1)", opts.GCDiscardRatio)
		}
		d.gc = startGC(bdb, opts.GCInterval, opts.GCDiscardRatio, opts.Logger)
	}
	return d, nil
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.stop()
	}
	return d.db.Close()
}

// Dir returns the database directory, empty for in-memory databases.
func (d *DB) Dir() string {
	return d.dir
}

// InMemory reports whether the database is RAM-only.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// Update runs fn in a read-write transaction and commits if fn returns nil.
//
// Nothing fn wrote is visible to other transactions when it returns an error.
func (d *DB) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View runs fn in a read-only snapshot transaction.
func (d *DB) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := d.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

// Get returns a copy of the value stored at key.
//
// Outputs:
//   - []byte: The value.
//   - error: ErrKeyNotFound if absent.
func (d *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := d.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Scan calls fn for every key with the given prefix, in key order.
//
// Key and value slices are copies and may be retained. Iteration stops at
// the first error from fn or when ctx is cancelled.
func (d *DB) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return d.View(ctx, func(txn *badger.Txn) error {
		return ScanTxn(ctx, txn, prefix, fn)
	})
}

// ScanTxn is Scan inside an existing transaction.
func ScanTxn(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   64,
		Prefix:         prefix,
	})
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("badger: read %q: %w", item.Key(), err)
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}

// ScanKeys is like ScanTxn but skips value reads.
func ScanKeys(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(key []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.Item().KeyCopy(nil)); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Value log GC
// -----------------------------------------------------------------------------

type gcLoop struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcLoop {
	g := &gcLoop{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go g.run()
	return g
}

func (g *gcLoop) run() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.collect()
		}
	}
}

// collect rewrites value log files until one pass finds nothing to reclaim.
func (g *gcLoop) collect() {
	for {
		err := g.db.RunValueLogGC(g.ratio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && g.logger != nil {
			g.logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
		}
		return
	}
}

func (g *gcLoop) stop() {
	g.once.Do(func() { close(g.stopCh) })
	<-g.doneCh
}
