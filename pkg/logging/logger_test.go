// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_slogLevel(t *testing.T) {
	if got := Level(-3).slogLevel(); got != slog.LevelInfo {
		t.Errorf("unknown level mapped to %v, want INFO", got)
	}
	if got := LevelWarn.slogLevel(); got != slog.LevelWarn {
		t.Errorf("LevelWarn mapped to %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{" INFO ", LevelInfo, false},
		{"", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, Service: "evals-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Info("run saved", "run_id", "r1")

	out := buf.String()
	for _, want := range []string{"run saved", "run_id=r1", "service=evals-test"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, JSON: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Warn("skipping", "path", "/tmp/x")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("console output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "skipping" || rec["level"] != "WARN" || rec["path"] != "/tmp/x" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, Level: LevelWarn})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("debug-msg")
	logger.Info("info-msg")
	logger.Warn("warn-msg")
	logger.Error("error-msg")

	out := buf.String()
	if strings.Contains(out, "debug-msg") || strings.Contains(out, "info-msg") {
		t.Errorf("records below Warn leaked: %q", out)
	}
	if !strings.Contains(out, "warn-msg") || !strings.Contains(out, "error-msg") {
		t.Errorf("records at or above Warn missing: %q", out)
	}
}

func TestNew_QuietDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Error("nobody hears this")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
	if logger.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", logger.FilePath())
	}
}

func TestNew_FileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	var console bytes.Buffer

	logger, err := New(Config{Writer: &console, LogDir: dir, Service: "evals"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.With("session", "s1").Info("listed runs", "count", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := filepath.Join(dir, "evals_"+time.Now().Format("2006-01-02")+".log")
	if logger.FilePath() != want {
		t.Errorf("FilePath() = %q, want %q", logger.FilePath(), want)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v", err)
	}
	if rec["session"] != "s1" || rec["service"] != "evals" || rec["count"] != float64(3) {
		t.Errorf("unexpected file record %v", rec)
	}
	if !strings.Contains(console.String(), "listed runs") {
		t.Errorf("console sink missed the record: %q", console.String())
	}
}

func TestNew_FileSinkDefaultServiceName(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Quiet: true, LogDir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if !strings.HasPrefix(filepath.Base(logger.FilePath()), "evals_") {
		t.Errorf("log file %q not named after default service", logger.FilePath())
	}
}

func TestNew_FileSinkError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{Quiet: true, LogDir: filepath.Join(blocker, "logs")}); err == nil {
		t.Error("New() with an unusable log dir should fail")
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, err := New(Config{Quiet: true, LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default().Slog() == nil {
		t.Error("Default().Slog() is nil")
	}
	d := Discard()
	d.Error("dropped")
	if d.FilePath() != "" {
		t.Errorf("Discard().FilePath() = %q", d.FilePath())
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	var buf lockedBuffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.With("worker", n).Info("tick")
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "tick"); got != 20 {
		t.Errorf("got %d records, want 20", got)
	}
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler_DeliversPastFailures(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
		slog.NewTextHandler(&buf, nil),
	}}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("Handle() error = %v, want sink down", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Error("second handler did not receive the record")
	}
}

func TestMultiHandler_EnabledAndDerive(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) = false, want true")
	}

	logger := slog.New(h.WithGroup("g").WithAttrs([]slog.Attr{slog.String("k", "v")}))
	logger.Info("only-b")

	if a.Len() != 0 {
		t.Errorf("error-level handler received info record: %q", a.String())
	}
	if !strings.Contains(b.String(), "g.k=v") {
		t.Errorf("derived attrs missing: %q", b.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := map[string]string{
		"~/logs":   filepath.Join(home, "logs"),
		"~":        home,
		"/var/log": "/var/log",
		"rel/path": "rel/path",
		"~user/x":  "~user/x",
	}
	for in, want := range tests {
		if got := expandPath(in); got != want {
			t.Errorf("expandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
