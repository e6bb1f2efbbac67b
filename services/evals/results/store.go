// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results persists evaluation runs and resolves human-chosen run
// names to concrete runs.
//
// Runs live in a two-level hierarchy: session, then one record per run_id.
// Run names are not unique. Two runs in one session may share a name; that
// only becomes an error when the name is resolved.
package results

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

// Store persists run records.
//
// # Description
//
// Implementations guarantee that a failed SaveRun leaves no new record
// behind and that concurrent saves to different run IDs never conflict.
// Reads observe a snapshot that is consistent per record.
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
type Store interface {
	// SaveRun persists summary and returns its run ID.
	SaveRun(ctx context.Context, summary Summary, opts SaveOptions) (string, error)

	// LoadRun returns one run by ID. ErrNotFound if absent.
	LoadRun(ctx context.Context, session, runID string) (*RunRecord, error)

	// ListRuns returns every run in a session, oldest first. A session
	// that does not exist has no runs.
	ListRuns(ctx context.Context, session string) ([]*RunRecord, error)

	// ListSessions returns session names, sorted.
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteRun removes one run. ErrNotFound if absent.
	DeleteRun(ctx context.Context, session, runID string) error

	// Backend names the implementation, e.g. "file" or "badger".
	Backend() string

	// Close releases resources.
	Close() error
}

// RunLister is the read side of a Store used by resolution.
type RunLister interface {
	ListRuns(ctx context.Context, session string) ([]*RunRecord, error)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	logger          *slog.Logger
	readConcurrency int
	now             func() time.Time
	newID           func() (string, error)
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		logger:          slog.Default(),
		readConcurrency: 8,
		now:             time.Now,
		newID:           NewRunID,
	}
}

func applyOptions(opts []Option) storeOptions {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadConcurrency bounds how many records are decoded in parallel.
func WithReadConcurrency(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.readConcurrency = n
		}
	}
}

// WithClock replaces time.Now for stamping created_at and default run names.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces NewRunID.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(o *storeOptions) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// prepare fills defaults, validates names, and stamps identity onto summary.
func (o storeOptions) prepare(summary Summary, opts SaveOptions) (Summary, error) {
	now := o.now()

	session := firstNonEmpty(opts.SessionName, summary.SessionName, DefaultSession)
	if err := ValidateSessionName(session); err != nil {
		return Summary{}, err
	}

	runName := firstNonEmpty(opts.RunName, summary.RunName, DefaultRunName(now))
	if err := ValidateRunName(runName); err != nil {
		return Summary{}, err
	}

	runID := opts.RunID
	if runID == "" {
		var err error
		if runID, err = o.newID(); err != nil {
			return Summary{}, err
		}
	}
	if err := ValidateRunID(runID); err != nil {
		return Summary{}, err
	}

	if err := summary.Validate(); err != nil {
		return Summary{}, err
	}

	out := summary
	out.SessionName = session
	out.RunName = runName
	out.RunID = runID
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now.UTC()
	}
	if out.Results == nil {
		out.Results = []json.RawMessage{}
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sortRecords orders records oldest first, breaking ties by run ID.
func sortRecords(recs []*RunRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].RunID < recs[j].RunID
	})
}

// observe records the latency of one store operation.
func observe(backend, op string, start time.Time) {
	telemetry.StoreOpSeconds.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
