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
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianEvals/services/evals/results"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions",
	}
	cmd.AddCommand(newSessionsListCmd(a))
	return cmd
}

type sessionView struct {
	Name   string `json:"name" yaml:"name"`
	Runs   int    `json:"runs" yaml:"runs"`
	Latest string `json:"latest_run_name,omitempty" yaml:"latest_run_name,omitempty"`
}

func newSessionsListCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with their run counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			names, err := store.ListSessions(ctx)
			if err != nil {
				return err
			}

			views := make([]sessionView, len(names))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(a.cfg.ReadConcurrency)
			for i, name := range names {
				i, name := i, name
				g.Go(func() error {
					recs, err := store.ListRuns(gctx, name)
					if err != nil {
						return err
					}
					views[i] = summarizeSession(name, recs)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if format != "table" {
				return writeStructured(a.streams.out, format, views)
			}
			if len(views) == 0 {
				a.out.Warning("no sessions")
				return nil
			}
			rows := make([][]string, len(views))
			for i, v := range views {
				rows[i] = []string{v.Name, strconv.Itoa(v.Runs), v.Latest}
			}
			a.out.Table([]string{"SESSION", "RUNS", "LATEST RUN"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table|json|yaml)")
	return cmd
}

// summarizeSession relies on ListRuns returning oldest first.
func summarizeSession(name string, recs []*results.RunRecord) sessionView {
	v := sessionView{Name: name, Runs: len(recs)}
	if len(recs) > 0 {
		v.Latest = recs[len(recs)-1].RunName
	}
	return v
}
