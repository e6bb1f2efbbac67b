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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// RunOp is the kind of change a RunEvent reports.
type RunOp int

const (
	// RunAdded means a record file appeared.
	RunAdded RunOp = iota
	// RunRemoved means a record file was deleted or moved away.
	RunRemoved
)

// String returns "added" or "removed".
func (op RunOp) String() string {
	if op == RunRemoved {
		return "removed"
	}
	return "added"
}

// RunEvent describes a record file change under a FileStore root.
type RunEvent struct {
	Op      RunOp
	Session string
	RunName string
	RunID   string
	Path    string
}

// RunEventHandler receives watcher events on the watcher goroutine.
type RunEventHandler func(RunEvent)

// SessionWatcher reports record files appearing in or leaving session
// directories of a FileStore root.
//
// # Description
//
// The root and every existing session directory are watched when the
// watcher is created. Session directories created later are added as they
// appear. Temporary files written during a save are ignored, so one save
// yields one RunAdded event.
//
// # Thread Safety
//
// Run must be called once. The handler is invoked from Run's goroutine.
type SessionWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	handler RunEventHandler
	logger  *slog.Logger
}

// NewSessionWatcher starts watching root. Call Run to deliver events.
//
// # Inputs
//
//   - root: A FileStore root. Must exist.
//   - handler: Called for each event. Must not be nil.
//   - opts: WithLogger is honoured; other options are ignored.
func NewSessionWatcher(root string, handler RunEventHandler, opts ...Option) (*SessionWatcher, error) {
	if handler == nil {
		return nil, errors.New("results: watch handler must not be nil")
	}
	o := applyOptions(opts)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("results: create watcher: %w", err)
	}
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("results: watch %s: %w", root, err)
	}

	dirents, err := os.ReadDir(root)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("results: list %s: %w", root, err)
	}
	for _, d := range dirents {
		if d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			if err := w.Add(filepath.Join(root, d.Name())); err != nil {
				_ = w.Close()
				return nil, fmt.Errorf("results: watch session %s: %w", d.Name(), err)
			}
		}
	}

	return &SessionWatcher{root: filepath.Clean(root), watcher: w, handler: handler, logger: o.logger}, nil
}

// Run delivers events until ctx is done, then closes the watcher.
func (sw *SessionWatcher) Run(ctx context.Context) error {
	defer sw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return nil
			}
			sw.handle(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return nil
			}
			sw.logger.Warn("session watcher error", slog.String("error", err.Error()))
		}
	}
}

func (sw *SessionWatcher) handle(event fsnotify.Event) {
	dir, name := filepath.Split(event.Name)
	dir = filepath.Clean(dir)

	if dir == sw.root {
		if event.Has(fsnotify.Create) && !strings.HasPrefix(name, ".") {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := sw.watcher.Add(event.Name); err != nil {
					sw.logger.Warn("failed to watch new session",
						slog.String("session", name),
						slog.String("error", err.Error()))
					return
				}
				// Records written before the watch was added.
				entries, _ := listEntries(event.Name)
				for _, e := range entries {
					sw.handler(RunEvent{Op: RunAdded, Session: name, RunName: e.runName, RunID: e.runID, Path: e.path})
				}
			}
		}
		return
	}
	if filepath.Dir(dir) != sw.root {
		return
	}

	runName, runID, ok := parseRecordFileName(name)
	if !ok {
		return
	}

	ev := RunEvent{
		Session: filepath.Base(dir),
		RunName: runName,
		RunID:   runID,
		Path:    event.Name,
	}
	switch {
	case event.Has(fsnotify.Create):
		ev.Op = RunAdded
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		ev.Op = RunRemoved
	default:
		return
	}
	sw.handler(ev)
}

// WatchSessions watches root and calls handler until ctx is done.
func WatchSessions(ctx context.Context, root string, handler RunEventHandler, opts ...Option) error {
	sw, err := NewSessionWatcher(root, handler, opts...)
	if err != nil {
		return err
	}
	return sw.Run(ctx)
}
