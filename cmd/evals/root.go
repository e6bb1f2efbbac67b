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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianEvals/pkg/logging"
	"github.com/AleutianAI/AleutianEvals/pkg/ux"
	"github.com/AleutianAI/AleutianEvals/services/evals/config"
	"github.com/AleutianAI/AleutianEvals/services/evals/results"
	evalsbadger "github.com/AleutianAI/AleutianEvals/services/evals/storage/badger"
)

// streams are the process's standard streams, swapped out in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newStreams() streams {
	return streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	resultsDir  string
	backend     string
	badgerDir   string
	logLevel    string
	jsonLogs    bool
	traceStdout bool
}

// app carries state built once per invocation.
//
// # Description
//
// The root command's PersistentPreRunE fills cfg, log and the printers.
// The store is opened lazily because `cases` commands never touch it.
// execute always calls close, including after a command error.
type app struct {
	streams streams
	flags   globalFlags

	cfg    config.Config
	log    *logging.Logger
	out    *ux.Printer
	errOut *ux.Printer

	store         results.Store
	shutdownTrace func(context.Context) error
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, s streams) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{streams: s}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		printer := a.errOut
		if printer == nil {
			printer = ux.NewPrinter(s.err)
		}
		printer.Error(err.Error())
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "evals",
		Short:         "Expand evaluation cases and manage saved runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default $EVALS_CONFIG or "+config.DefaultPath+")")
	pf.StringVar(&a.flags.resultsDir, "results-dir", "", "override results_dir")
	pf.StringVar(&a.flags.backend, "backend", "", "override backend (file|badger)")
	pf.StringVar(&a.flags.badgerDir, "badger-dir", "", "override badger_dir")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "override log.level")
	pf.BoolVar(&a.flags.jsonLogs, "json-logs", false, "log to stderr as JSON")
	pf.BoolVar(&a.flags.traceStdout, "trace", false, "print OpenTelemetry spans to stderr")

	root.AddCommand(
		newCasesCmd(a),
		newRunsCmd(a),
		newSessionsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads config, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = ux.NewPrinter(a.streams.out)
	a.errOut = ux.NewPrinter(a.streams.err)

	path := a.flags.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("results-dir") {
		cfg.ResultsDir = a.flags.resultsDir
	}
	if flags.Changed("backend") {
		cfg.Backend = a.flags.backend
	}
	if flags.Changed("badger-dir") {
		cfg.BadgerDir = a.flags.badgerDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.flags.logLevel
	}
	if flags.Changed("json-logs") {
		cfg.Log.JSON = a.flags.jsonLogs
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.log, err = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "evals",
		JSON:    cfg.Log.JSON,
		Writer:  a.streams.err,
	})
	if err != nil {
		return err
	}
	a.log.Debug("config loaded", "path", path, "backend", cfg.Backend)

	if a.flags.traceStdout {
		return a.installTracing()
	}
	return nil
}

func (a *app) installTracing() error {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(a.streams.err), stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	a.shutdownTrace = tp.Shutdown
	return nil
}

// openStore returns the configured run store, opening it on first use.
func (a *app) openStore() (results.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	opts := []results.Option{
		results.WithLogger(a.log.Slog()),
		results.WithReadConcurrency(a.cfg.ReadConcurrency),
	}

	var (
		store results.Store
		err   error
	)
	switch a.cfg.Backend {
	case config.BackendBadger:
		dbOpts := evalsbadger.DefaultOptions(a.cfg.BadgerDir)
		dbOpts.Logger = a.log.Slog()
		store, err = results.OpenBadgerStore(dbOpts, opts...)
	default:
		store, err = results.NewFileStore(a.cfg.ResultsDir, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Backend, err)
	}
	a.store = store
	return store, nil
}

// session picks the flag value, falling back to the configured default.
func (a *app) session(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.DefaultSession
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTrace != nil {
		errs = append(errs, a.shutdownTrace(ctx))
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}
