// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cases

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// YAML Declarations
// -----------------------------------------------------------------------------

// Declaration is an evaluation function described in YAML rather than code.
//
// A file may hold several declarations as separate YAML documents:
//
//	function: qa
//	spec:
//	  labels: [prod]
//	  timeout: 30s
//	cases:
//	  - id: a
//	    input: x
//	  - id: b
//	    input: y
//	    labels: []
type Declaration struct {
	// Function is the registered name.
	Function string `yaml:"function"`

	// ContextParam overrides the convention detected from the implementation.
	ContextParam *bool `yaml:"context_param,omitempty"`

	// Async selects an asynchronous implementation shape.
	Async bool `yaml:"async,omitempty"`

	// Spec is the base specification. Absent means an undecorated function.
	Spec *SpecDeclaration `yaml:"spec,omitempty"`

	// Cases is the raw case table, checked by Normalize.
	Cases any `yaml:"cases,omitempty"`
}

// SpecDeclaration is the YAML form of a base Spec.
type SpecDeclaration struct {
	Dataset         *string        `yaml:"dataset,omitempty"`
	Labels          []string       `yaml:"labels,omitempty"`
	Evaluators      []string       `yaml:"evaluators,omitempty"`
	Target          *string        `yaml:"target,omitempty"`
	Input           any            `yaml:"input,omitempty"`
	Reference       any            `yaml:"reference,omitempty"`
	DefaultScoreKey *string        `yaml:"default_score_key,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty"`
	Timeout         any            `yaml:"timeout,omitempty"`
}

// ParseDeclarations decodes every YAML document in data.
//
// Unknown top-level or spec keys are rejected. Case keys are left to
// Normalize so their errors carry the case index.
func ParseDeclarations(data []byte) ([]Declaration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []Declaration
	for doc := 0; ; doc++ {
		var d Declaration
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("document %d: %v", doc, err)}
		}
		if d.Function == "" {
			return nil, &ValidationError{Index: -1, Keys: []string{"function"}, Reason: fmt.Sprintf("document %d: function is required", doc)}
		}
		out = append(out, d)
	}
	return out, nil
}

// BaseSpec converts the spec block. Nil when the declaration has none.
func (d Declaration) BaseSpec() (*Spec, error) {
	if d.Spec == nil {
		return nil, nil
	}
	sd := d.Spec
	spec := Spec{
		Dataset:         clonePtr(sd.Dataset),
		Target:          clonePtr(sd.Target),
		DefaultScoreKey: clonePtr(sd.DefaultScoreKey),
		Input:           sd.Input,
		Reference:       sd.Reference,
		Labels:          dedupe(sd.Labels),
		Metadata:        cloneMap(sd.Metadata),
	}
	if spec.Labels == nil {
		spec.Labels = []string{}
	} else {
		spec.ProvidedLabels = ProvenanceProvided
	}
	if sd.Evaluators != nil {
		spec.Evaluators = make([]EvaluatorRef, len(sd.Evaluators))
		for i, e := range sd.Evaluators {
			spec.Evaluators[i] = EvaluatorRef(e)
		}
		spec.ProvidedEvaluators = ProvenanceProvided
	}
	if sd.Timeout != nil {
		f, err := timeoutField(-1, sd.Timeout)
		if err != nil {
			return nil, &SpecificationError{Function: d.Function, Reason: "spec timeout must be a non-negative duration"}
		}
		if v, ok := f.Value(); ok {
			spec.Timeout = &v
		}
	}
	return &spec, nil
}

// Register adds the declaration to r with impl as its implementation.
func (d Declaration) Register(r *Registry, impl any) error {
	var opts []Option
	spec, err := d.BaseSpec()
	if err != nil {
		return err
	}
	if spec != nil {
		opts = append(opts, WithSpec(*spec))
	}
	if d.ContextParam != nil {
		opts = append(opts, WithContextParam(*d.ContextParam))
	}
	if d.Cases != nil {
		opts = append(opts, WithCases(d.Cases))
	}
	return r.Register(d.Function, impl, opts...)
}

func dedupe(labels []string) []string {
	if labels == nil {
		return nil
	}
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
