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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

const fileBackend = "file"

// FileStore keeps one JSON file per run under <root>/<session>/.
//
// # Description
//
// Each record is written to a temporary file in the session directory and
// renamed into place, so readers never observe a partial record. Writes are
// serialized per store; reads take no lock and tolerate concurrent writers.
// Files that fail to decode are skipped with a warning.
//
// # Thread Safety
//
// Safe for concurrent use.
type FileStore struct {
	root string
	mu   sync.Mutex
	opts storeOptions
}

// fileEntry is a record file as seen in a directory listing.
type fileEntry struct {
	runName string
	runID   string
	path    string
}

// NewFileStore opens (creating if needed) a file store rooted at root.
//
// # Inputs
//
//   - root: Directory holding session directories. Created with 0750.
//   - opts: WithLogger, WithReadConcurrency, WithClock, WithIDGenerator.
//
// # Outputs
//
//   - *FileStore: The store.
//   - error: Non-nil if root is empty or cannot be created.
func NewFileStore(root string, opts ...Option) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("results: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("results: create %s: %w", root, err)
	}
	return &FileStore{root: root, opts: applyOptions(opts)}, nil
}

// Root returns the directory holding session directories.
func (s *FileStore) Root() string {
	return s.root
}

// Backend returns "file".
func (s *FileStore) Backend() string {
	return fileBackend
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// SaveRun writes summary as <root>/<session>/<run_name>_<run_id>.json.
//
// # Description
//
// See SaveOptions for overwrite semantics. Removal of replaced records
// happens only after the new record is in place.
//
// # Outputs
//
//   - string: The run ID.
//   - error: ErrInvalidName, ErrInvalidSummary, ErrRunExists, or an I/O error.
func (s *FileStore) SaveRun(ctx context.Context, summary Summary, opts SaveOptions) (runID string, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "results.FileStore.SaveRun")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		observe(fileBackend, "save", start)
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
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", rec.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, rec.SessionName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create session %s: %w", rec.SessionName, err)
	}

	entries, err := listEntries(dir)
	if err != nil {
		return "", err
	}

	var stale []fileEntry
	for _, e := range entries {
		switch {
		case e.runID == rec.RunID && !opts.Overwrite:
			return "", fmt.Errorf("%w: %s/%s", ErrRunExists, rec.SessionName, rec.RunID)
		case e.runID == rec.RunID, opts.Overwrite && e.runName == rec.RunName:
			stale = append(stale, e)
		}
	}

	target := filepath.Join(dir, recordFileName(rec.RunName, rec.RunID))
	if err := writeFileAtomic(dir, target, data); err != nil {
		return "", err
	}

	for _, e := range stale {
		if e.path == target {
			continue
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.opts.logger.Warn("failed to remove replaced run",
				slog.String("path", e.path),
				slog.String("error", err.Error()))
		}
	}

	telemetry.RunsSaved.WithLabelValues(fileBackend).Inc()
	s.opts.logger.Debug("run saved",
		slog.String("session", rec.SessionName),
		slog.String("run_name", rec.RunName),
		slog.String("run_id", rec.RunID),
		slog.Int("replaced", len(stale)))
	return rec.RunID, nil
}

// writeFileAtomic writes data to a temp file in dir and renames it to target.
func writeFileAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".run-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return fmt.Errorf("finalize record: %w", err)
	}
	return nil
}

// LoadRun reads one record by run ID.
func (s *FileStore) LoadRun(ctx context.Context, session, runID string) (*RunRecord, error) {
	defer observe(fileBackend, "load", time.Now())

	if err := ValidateSessionName(session); err != nil {
		return nil, err
	}
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := listEntries(filepath.Join(s.root, session))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.runID != runID {
			continue
		}
		rec, err := readRecord(e.path)
		if err != nil {
			return nil, fmt.Errorf("read run %s/%s: %w", session, runID, err)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, session, runID)
}

// ListRuns decodes every record in session concurrently, oldest first.
func (s *FileStore) ListRuns(ctx context.Context, session string) (recs []*RunRecord, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "results.FileStore.ListRuns",
		trace.WithAttributes(telemetry.AttrSession.String(session)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		observe(fileBackend, "list", start)
	}()

	if err := ValidateSessionName(session); err != nil {
		return nil, err
	}

	entries, err := listEntries(filepath.Join(s.root, session))
	if err != nil {
		return nil, err
	}

	loaded := make([]*RunRecord, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.readConcurrency)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := readRecord(e.path)
			if err != nil {
				s.opts.logger.Warn("skipping unreadable run record",
					slog.String("path", e.path),
					slog.String("error", err.Error()))
				return nil
			}
			loaded[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recs = make([]*RunRecord, 0, len(loaded))
	for _, rec := range loaded {
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	sortRecords(recs)
	span.SetAttributes(telemetry.AttrMatches.Int(len(recs)))
	return recs, nil
}

// ListSessions returns the names of session directories, sorted.
func (s *FileStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []string
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		sessions = append(sessions, d.Name())
	}
	sort.Strings(sessions)
	return sessions, nil
}

// DeleteRun removes the record file for runID.
func (s *FileStore) DeleteRun(ctx context.Context, session, runID string) error {
	defer observe(fileBackend, "delete", time.Now())

	if err := ValidateSessionName(session); err != nil {
		return err
	}
	if err := ValidateRunID(runID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := listEntries(filepath.Join(s.root, session))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.runID == runID {
			if err := os.Remove(e.path); err != nil {
				return fmt.Errorf("delete run %s/%s: %w", session, runID, err)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrNotFound, session, runID)
}

// listEntries returns the record files in dir. A missing dir has none.
func listEntries(dir string) ([]fileEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]fileEntry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		runName, runID, ok := parseRecordFileName(d.Name())
		if !ok {
			continue
		}
		entries = append(entries, fileEntry{
			runName: runName,
			runID:   runID,
			path:    filepath.Join(dir, d.Name()),
		})
	}
	return entries, nil
}

func readRecord(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	summary, err := decodeSummary(data)
	if err != nil {
		return nil, err
	}
	return newRecord(summary, path), nil
}
