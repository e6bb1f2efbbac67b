// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/trace"

	evalsbadger "github.com/AleutianAI/AleutianEvals/services/evals/storage/badger"
	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

const badgerBackend = "badger"

const keyPrefix = "run/"

func runKey(session, runID string) []byte {
	return []byte(keyPrefix + session + "/" + runID)
}

func sessionPrefix(session string) []byte {
	return []byte(keyPrefix + session + "/")
}

// BadgerStore keeps runs in BadgerDB under run/<session>/<run_id>.
//
// # Description
//
// Every save, including the removal of replaced runs, commits in a single
// transaction. Reads run in snapshot transactions.
//
// # Thread Safety
//
// Safe for concurrent use. Conflicting concurrent saves to the same
// session surface badger.ErrConflict to one of the callers.
type BadgerStore struct {
	db    *evalsbadger.DB
	owned bool
	opts  storeOptions
}

// NewBadgerStore wraps an open database. Close does not close db.
func NewBadgerStore(db *evalsbadger.DB, opts ...Option) *BadgerStore {
	return &BadgerStore{db: db, opts: applyOptions(opts)}
}

// OpenBadgerStore opens a database with dbOpts and owns it.
func OpenBadgerStore(dbOpts evalsbadger.Options, opts ...Option) (*BadgerStore, error) {
	o := applyOptions(opts)
	if dbOpts.Logger == nil {
		dbOpts.Logger = o.logger
	}
	db, err := evalsbadger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, owned: true, opts: o}, nil
}

// Backend returns "badger".
func (s *BadgerStore) Backend() string {
	return badgerBackend
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores summary under run/<session>/<run_id>.
//
// # Outputs
//
//   - string: The run ID.
//   - error: ErrInvalidName, ErrInvalidSummary, ErrRunExists, or a badger error.
func (s *BadgerStore) SaveRun(ctx context.Context, summary Summary, opts SaveOptions) (runID string, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "results.BadgerStore.SaveRun")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		observe(badgerBackend, "save", start)
	}()

	rec, err := s.opts.prepare(summary, opts)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		telemetry.AttrSession.String(rec.SessionName),
		telemetry.AttrRunName.String(rec.RunName),
		telemetry.AttrRunID.String(rec.RunID),
	)

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", rec.RunID, err)
	}

	replaced := 0
	err = s.db.Update(ctx, func(txn *badger.Txn) error {
		key := runKey(rec.SessionName, rec.RunID)
		_, getErr := txn.Get(key)
		switch {
		case getErr == nil && !opts.Overwrite:
			return fmt.Errorf("%w: %s/%s", ErrRunExists, rec.SessionName, rec.RunID)
		case getErr != nil && !errors.Is(getErr, badger.ErrKeyNotFound):
			return getErr
		}

		if opts.Overwrite {
			var stale [][]byte
			scanErr := evalsbadger.ScanTxn(ctx, txn, sessionPrefix(rec.SessionName), func(k, v []byte) error {
				if string(k) == string(key) {
					return nil
				}
				var other Summary
				if err := json.Unmarshal(v, &other); err != nil {
					return nil
				}
				if other.RunName == rec.RunName {
					stale = append(stale, k)
				}
				return nil
			})
			if scanErr != nil {
				return scanErr
			}
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			replaced = len(stale)
		}

		return txn.Set(key, data)
	})
	if err != nil {
		return "", err
	}

	telemetry.RunsSaved.WithLabelValues(badgerBackend).Inc()
	s.opts.logger.Debug("run saved",
		slog.String("session", rec.SessionName),
		slog.String("run_name", rec.RunName),
		slog.String("run_id", rec.RunID),
		slog.Int("replaced", replaced))
	return rec.RunID, nil
}

// LoadRun reads one run by ID.
func (s *BadgerStore) LoadRun(ctx context.Context, session, runID string) (*RunRecord, error) {
	defer observe(badgerBackend, "load", time.Now())

	if err := ValidateSessionName(session); err != nil {
		return nil, err
	}
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	data, err := s.db.Get(ctx, runKey(session, runID))
	if errors.Is(err, evalsbadger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, session, runID)
	}
	if err != nil {
		return nil, err
	}
	summary, err := decodeSummary(data)
	if err != nil {
		return nil, fmt.Errorf("decode run %s/%s: %w", session, runID, err)
	}
	return newRecord(summary, ""), nil
}

// ListRuns returns every run in session, oldest first.
func (s *BadgerStore) ListRuns(ctx context.Context, session string) (recs []*RunRecord, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "results.BadgerStore.ListRuns",
		trace.WithAttributes(telemetry.AttrSession.String(session)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		observe(badgerBackend, "list", start)
	}()

	if err := ValidateSessionName(session); err != nil {
		return nil, err
	}

	err = s.db.Scan(ctx, sessionPrefix(session), func(k, v []byte) error {
		summary, err := decodeSummary(v)
		if err != nil {
			s.opts.logger.Warn("skipping unreadable run record",
				slog.String("key", string(k)),
				slog.String("error", err.Error()))
			return nil
		}
		recs = append(recs, newRecord(summary, ""))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(recs)
	span.SetAttributes(telemetry.AttrMatches.Int(len(recs)))
	return recs, nil
}

// ListSessions returns every session with at least one run, sorted.
func (s *BadgerStore) ListSessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		return evalsbadger.ScanKeys(ctx, txn, []byte(keyPrefix), func(k []byte) error {
			rest := strings.TrimPrefix(string(k), keyPrefix)
			if session, _, ok := strings.Cut(rest, "/"); ok {
				seen[session] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]string, 0, len(seen))
	for name := range seen {
		sessions = append(sessions, name)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// DeleteRun removes one run.
func (s *BadgerStore) DeleteRun(ctx context.Context, session, runID string) error {
	defer observe(badgerBackend, "delete", time.Now())

	if err := ValidateSessionName(session); err != nil {
		return err
	}
	if err := ValidateRunID(runID); err != nil {
		return err
	}

	return s.db.Update(ctx, func(txn *badger.Txn) error {
		key := runKey(session, runID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, session, runID)
			}
			return err
		}
		return txn.Delete(key)
	})
}
