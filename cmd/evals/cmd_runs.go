// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianEvals/services/evals/config"
	"github.com/AleutianAI/AleutianEvals/services/evals/results"
	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Save, list and resolve evaluation runs",
	}
	cmd.AddCommand(
		newRunsSaveCmd(a),
		newRunsListCmd(a),
		newRunsShowCmd(a),
		newRunsDeleteCmd(a),
		newRunsResolveCmd(a),
		newRunsCompareCmd(a),
		newRunsWatchCmd(a),
	)
	return cmd
}

// runsSaveCmd persists a summary JSON document.
//
// # Description
//
// Session and run name come from the flags, then from the summary's own
// session_name/run_name, then from the config default and a timestamped
// name. Without --no-overwrite a save replaces runs of the same name in
// the session.
func newRunsSaveCmd(a *app) *cobra.Command {
	var (
		opts        results.SaveOptions
		noOverwrite bool
	)
	cmd := &cobra.Command{
		Use:   "save <summary.json|->",
		Short: "Save a run summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(a.streams.in, args[0])
			if err != nil {
				return err
			}
			var summary results.Summary
			if err := json.Unmarshal(data, &summary); err != nil {
				return fmt.Errorf("%w: %v", results.ErrInvalidSummary, err)
			}
			if opts.SessionName == "" && summary.SessionName == "" {
				opts.SessionName = a.cfg.DefaultSession
			}
			opts.Overwrite = !noOverwrite

			store, err := a.openStore()
			if err != nil {
				return err
			}
			runID, err := store.SaveRun(cmd.Context(), summary, opts)
			if err != nil {
				return err
			}
			a.log.Info("run saved", "run_id", runID, "backend", store.Backend())
			a.out.Line(runID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.SessionName, "session", "s", "", "session name")
	f.StringVarP(&opts.RunName, "run-name", "n", "", "run name")
	f.StringVar(&opts.RunID, "run-id", "", "run ID (generated when empty)")
	f.BoolVar(&noOverwrite, "no-overwrite", false, "keep existing runs with the same name")
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var (
		session string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs in a session, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			recs, err := store.ListRuns(cmd.Context(), a.session(session))
			if err != nil {
				return err
			}
			if format != "table" {
				return writeStructured(a.streams.out, format, toRunViews(recs))
			}
			if len(recs) == 0 {
				a.out.Warning(fmt.Sprintf("no runs in session %q", a.session(session)))
				return nil
			}
			a.out.Title("Session " + a.session(session))
			a.out.Table(runTableHeaders, runTableRows(recs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "session name")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table|json|yaml)")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run's stored summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			rec, err := store.LoadRun(cmd.Context(), a.session(session), args[0])
			if err != nil {
				return err
			}
			return writeStructured(a.streams.out, "json", rec.Summary)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "session name")
	return cmd
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := store.DeleteRun(cmd.Context(), a.session(session), args[0]); err != nil {
				return err
			}
			a.out.Success("deleted " + args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "session name")
	return cmd
}

// runsResolveCmd maps a run name to its run ID.
//
// # Description
//
// Prints the run ID of the single run with that name. A missing name
// prints nothing and succeeds unless --required is set. A name shared by
// several runs always fails.
func newRunsResolveCmd(a *app) *cobra.Command {
	var (
		session  string
		runName  string
		required bool
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a run name to a run ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			rec, err := results.Resolve(cmd.Context(), store, a.session(session), runName, required)
			if err != nil {
				return err
			}
			if rec == nil {
				a.log.Debug("run name not found", "run_name", runName)
				return nil
			}
			a.out.Line(rec.RunID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "session name")
	cmd.Flags().StringVarP(&runName, "run-name", "n", "", "run name to resolve")
	cmd.Flags().BoolVar(&required, "required", false, "fail when the name is not found")
	_ = cmd.MarkFlagRequired("run-name")
	return cmd
}

// runsCompareCmd resolves 2 to 4 run names and prints the browse query
// that opens them side by side.
func newRunsCompareCmd(a *app) *cobra.Command {
	var (
		session     string
		compareRuns string
		search      string
		annotation  string
		hasError    string
		hasURL      string
		hasMessages string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Resolve runs for side-by-side comparison",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := results.ParseCompareRunNames(compareRuns)
			if err != nil {
				return err
			}
			filters := results.QueryFilters{Search: search, Annotation: annotation}
			for _, f := range []struct {
				name string
				raw  string
				dst  **bool
			}{
				{"has-error", hasError, &filters.HasError},
				{"has-url", hasURL, &filters.HasURL},
				{"has-messages", hasMessages, &filters.HasMessages},
			} {
				if *f.dst, err = parseTriState(f.name, f.raw); err != nil {
					return err
				}
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			recs, err := results.ResolveAll(cmd.Context(), store, a.session(session), names)
			if err != nil {
				return err
			}

			filters.ActiveRunID = recs[0].RunID
			for _, rec := range recs {
				filters.ComparisonRunIDs = append(filters.ComparisonRunIDs, rec.RunID)
			}

			a.out.Title("Comparing " + strconv.Itoa(len(recs)) + " runs")
			a.out.Table(runTableHeaders, runTableRows(recs))
			a.out.Line("?" + results.EncodeQuery(results.BuildQueryParams(filters)))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&session, "session", "s", "", "session name")
	f.StringVar(&compareRuns, "compare-runs", "", "comma-separated run names (2 to 4)")
	f.StringVar(&search, "search", "", "search filter")
	f.StringVar(&annotation, "annotation", "", "annotation filter")
	f.StringVar(&hasError, "has-error", "", "filter by error presence (true|false)")
	f.StringVar(&hasURL, "has-url", "", "filter by trace URL presence (true|false)")
	f.StringVar(&hasMessages, "has-messages", "", "filter by message presence (true|false)")
	_ = cmd.MarkFlagRequired("compare-runs")
	return cmd
}

// runsWatchCmd streams run additions and removals until interrupted.
func newRunsWatchCmd(a *app) *cobra.Command {
	var (
		session     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print runs as they are saved or deleted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Backend != config.BackendFile {
				return fmt.Errorf("watch requires the %s backend, configured backend is %s", config.BackendFile, a.cfg.Backend)
			}
			ctx := cmd.Context()
			if err := os.MkdirAll(a.cfg.ResultsDir, 0o750); err != nil {
				return fmt.Errorf("create results dir: %w", err)
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr, a)
				if err != nil {
					return err
				}
				defer stop()
			}

			handler := func(ev results.RunEvent) {
				if session != "" && ev.Session != session {
					return
				}
				line := fmt.Sprintf("%s\t%s\t%s\t%s", ev.Op, ev.Session, ev.RunName, ev.RunID)
				if ev.Op == results.RunAdded {
					a.out.Success(line)
				} else {
					a.out.Warning(line)
				}
			}
			a.log.Info("watching sessions", "root", a.cfg.ResultsDir)
			err := results.WatchSessions(ctx, a.cfg.ResultsDir, handler, results.WithLogger(a.log.Slog()))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "only report this session")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// serveMetrics exposes the evals registry at /metrics until stop is called.
func serveMetrics(addr string, a *app) (stop func(), err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.log.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// parseTriState maps "" to nil and a boolean string to a pointer.
func parseTriState(flag, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &v, nil
}

// -----------------------------------------------------------------------------
// Run Views
// -----------------------------------------------------------------------------

var runTableHeaders = []string{"RUN ID", "RUN NAME", "CREATED", "TOTAL", "PASSED", "FAILED", "ERRORS"}

func runTableRows(recs []*results.RunRecord) [][]string {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{
			r.RunID,
			r.RunName,
			r.CreatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(r.Summary.TotalEvaluations),
			strconv.Itoa(r.Summary.Passed),
			strconv.Itoa(r.Summary.Failed),
			strconv.Itoa(r.Summary.Errors),
		}
	}
	return rows
}

type runView struct {
	RunID            string    `json:"run_id" yaml:"run_id"`
	RunName          string    `json:"run_name" yaml:"run_name"`
	SessionName      string    `json:"session_name" yaml:"session_name"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
	TotalEvaluations int       `json:"total_evaluations" yaml:"total_evaluations"`
	Path             string    `json:"path,omitempty" yaml:"path,omitempty"`
}

func toRunViews(recs []*results.RunRecord) []runView {
	views := make([]runView, len(recs))
	for i, r := range recs {
		views[i] = runView{
			RunID:            r.RunID,
			RunName:          r.RunName,
			SessionName:      r.SessionName,
			CreatedAt:        r.CreatedAt,
			TotalEvaluations: r.Summary.TotalEvaluations,
			Path:             r.Path,
		}
	}
	return views
}
