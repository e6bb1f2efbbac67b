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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianEvals/services/evals/cases"
)

func newCasesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Inspect evaluation case declarations",
	}
	cmd.AddCommand(newCasesExpandCmd(a), newCasesKeysCmd(a))
	return cmd
}

func newCasesExpandCmd(a *app) *cobra.Command {
	var (
		format    string
		namesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "expand <file.yaml|->",
		Short: "Expand declared functions into evaluation units",
		Long: `Reads one or more YAML documents, each declaring a function with an
optional base spec and case table, and prints every resulting unit with its
resolved settings. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(a.streams.in, args[0])
			if err != nil {
				return err
			}
			units, err := expandDeclarations(cmd.Context(), data)
			if err != nil {
				return err
			}
			a.log.Debug("cases expanded", "file", args[0], "units", len(units))

			if namesOnly {
				for _, u := range units {
					a.out.Line(u.Name)
				}
				return nil
			}
			return writeStructured(a.streams.out, format, toUnitViews(units))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml|json)")
	cmd.Flags().BoolVar(&namesOnly, "names", false, "print unit names only")
	return cmd
}

func newCasesKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys a case may override",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a.out.Line(cases.KeyID + " (case id, not an override)")
			for _, k := range cases.ReservedKeys() {
				a.out.Line(k)
			}
			return nil
		},
	}
}

// expandDeclarations registers every declaration in a fresh registry and
// expands them all.
func expandDeclarations(ctx context.Context, data []byte) ([]cases.Unit, error) {
	decls, err := cases.ParseDeclarations(data)
	if err != nil {
		return nil, err
	}
	registry := cases.NewRegistry()
	for _, d := range decls {
		contextAware := d.ContextParam == nil || *d.ContextParam
		if err := d.Register(registry, inspectionImpl(contextAware, d.Async)); err != nil {
			return nil, err
		}
	}
	return registry.ExpandAll(ctx)
}

// inspectionImpl returns an implementation of the requested shape that
// echoes the case input. Declarations carry no code, so expansion binds
// them to this stand-in.
func inspectionImpl(contextAware, async bool) any {
	switch {
	case contextAware && async:
		return cases.AsyncContextFunc(func(_ context.Context, ec *cases.EvalContext, _ ...any) <-chan cases.Outcome {
			ch := make(chan cases.Outcome, 1)
			ch <- cases.Outcome{Value: ec.Input}
			close(ch)
			return ch
		})
	case contextAware:
		return cases.ContextFunc(func(_ context.Context, ec *cases.EvalContext, _ ...any) (any, error) {
			return ec.Input, nil
		})
	case async:
		return cases.AsyncPlainFunc(func(_ context.Context, args ...any) <-chan cases.Outcome {
			ch := make(chan cases.Outcome, 1)
			ch <- cases.Outcome{Value: args}
			close(ch)
			return ch
		})
	default:
		return cases.PlainFunc(func(_ context.Context, args ...any) (any, error) {
			return args, nil
		})
	}
}

// -----------------------------------------------------------------------------
// Output Views
// -----------------------------------------------------------------------------

type unitView struct {
	Name       string   `json:"name" yaml:"name"`
	Function   string   `json:"function" yaml:"function"`
	Index      int      `json:"index" yaml:"index"`
	ID         *string  `json:"id,omitempty" yaml:"id,omitempty"`
	Convention string   `json:"convention" yaml:"convention"`
	Spec       specView `json:"spec" yaml:"spec"`
}

type specView struct {
	Dataset            *string              `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Labels             []string             `json:"labels" yaml:"labels"`
	Evaluators         []cases.EvaluatorRef `json:"evaluators,omitempty" yaml:"evaluators,omitempty"`
	Target             *string              `json:"target,omitempty" yaml:"target,omitempty"`
	Input              any                  `json:"input,omitempty" yaml:"input,omitempty"`
	Reference          any                  `json:"reference,omitempty" yaml:"reference,omitempty"`
	DefaultScoreKey    *string              `json:"default_score_key,omitempty" yaml:"default_score_key,omitempty"`
	Metadata           map[string]any       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Timeout            string               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ContextParam       bool                 `json:"context_param" yaml:"context_param"`
	ProvidedLabels     string               `json:"provided_labels" yaml:"provided_labels"`
	ProvidedEvaluators string               `json:"provided_evaluators" yaml:"provided_evaluators"`
}

func toUnitViews(units []cases.Unit) []unitView {
	views := make([]unitView, len(units))
	for i, u := range units {
		s := u.Spec
		v := unitView{
			Name:       u.Name,
			Function:   u.Function,
			Index:      u.Index,
			ID:         u.ID,
			Convention: u.Callable.Convention().String(),
			Spec: specView{
				Dataset:            s.Dataset,
				Labels:             s.Labels,
				Evaluators:         s.Evaluators,
				Target:             s.Target,
				Input:              s.Input,
				Reference:          s.Reference,
				DefaultScoreKey:    s.DefaultScoreKey,
				Metadata:           s.Metadata,
				ContextParam:       u.Callable.Convention().ContextAware,
				ProvidedLabels:     s.ProvidedLabels.String(),
				ProvidedEvaluators: s.ProvidedEvaluators.String(),
			},
		}
		if s.Timeout != nil {
			v.Spec.Timeout = s.Timeout.String()
		}
		views[i] = v
	}
	return views
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeStructured encodes v as yaml or json.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
