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
	"fmt"
	"time"
)

// EvaluatorRef names an evaluator that scores a unit's output.
type EvaluatorRef string

// -----------------------------------------------------------------------------
// Provenance
// -----------------------------------------------------------------------------

// Provenance records where a unit's labels or evaluators came from.
//
// Consumers use it to tell inherited defaults apart from values a case set
// or cleared explicitly, independent of the merged value.
type Provenance int

const (
	// ProvenanceNone means nothing was provided at the base level.
	ProvenanceNone Provenance = iota
	// ProvenanceProvided means the base specification provided the values.
	ProvenanceProvided
	// ProvenanceExplicitEmpty means a case declared the key itself.
	ProvenanceExplicitEmpty
)

// String returns the string representation of a Provenance.
func (p Provenance) String() string {
	switch p {
	case ProvenanceNone:
		return "none"
	case ProvenanceProvided:
		return "provided"
	case ProvenanceExplicitEmpty:
		return "explicit_empty"
	default:
		return fmt.Sprintf("provenance(%d)", p)
	}
}

// -----------------------------------------------------------------------------
// Spec
// -----------------------------------------------------------------------------

// Spec is the settings attached to an evaluation function.
//
// Before expansion it is the base specification given at registration;
// after expansion every unit carries its own resolved copy. Pointer fields
// and nil maps/slices represent explicit absence.
//
// Thread Safety: Treat as immutable once registered. Clone before mutating.
type Spec struct {
	// Dataset groups units for filtering. Nil when absent.
	Dataset *string `json:"dataset,omitempty" yaml:"dataset,omitempty"`

	// Labels is an ordered set of tags.
	Labels []string `json:"labels" yaml:"labels"`

	// Evaluators are the scorers applied to the output. Nil when absent.
	Evaluators []EvaluatorRef `json:"evaluators,omitempty" yaml:"evaluators,omitempty"`

	// Target names the system under evaluation. Nil when absent.
	Target *string `json:"target,omitempty" yaml:"target,omitempty"`

	// Input is handed to the implementation through the EvalContext.
	Input any `json:"input,omitempty" yaml:"input,omitempty"`

	// Reference is the expected output, if any.
	Reference any `json:"reference,omitempty" yaml:"reference,omitempty"`

	// DefaultScoreKey names the score recorded when none is given. Nil when absent.
	DefaultScoreKey *string `json:"default_score_key,omitempty" yaml:"default_score_key,omitempty"`

	// Metadata is free-form. Nil when absent, never an empty map after a merge.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Timeout is passed through to the runner; it is not enforced here.
	Timeout *time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ContextParam declares whether the implementation accepts an
	// EvalContext. Nil means detect it from the implementation type.
	// Expanded units always carry the resolved value.
	ContextParam *bool `json:"context_param,omitempty" yaml:"context_param,omitempty"`

	// ProvidedLabels tracks where Labels came from.
	ProvidedLabels Provenance `json:"-" yaml:"-"`

	// ProvidedEvaluators tracks where Evaluators came from.
	ProvidedEvaluators Provenance `json:"-" yaml:"-"`
}

// Clone returns a copy that shares no slices or maps with s.
//
// Metadata is copied one level deep; nested values are shared.
func (s Spec) Clone() Spec {
	out := s
	out.Dataset = clonePtr(s.Dataset)
	out.Target = clonePtr(s.Target)
	out.DefaultScoreKey = clonePtr(s.DefaultScoreKey)
	out.Timeout = clonePtr(s.Timeout)
	out.ContextParam = clonePtr(s.ContextParam)
	out.Labels = cloneSlice(s.Labels)
	out.Evaluators = cloneSlice(s.Evaluators)
	out.Metadata = cloneMap(s.Metadata)
	return out
}

// StringPtr returns a pointer to v. Convenience for building a Spec.
func StringPtr(v string) *string {
	return &v
}

// BoolPtr returns a pointer to v. Convenience for setting ContextParam.
func BoolPtr(v bool) *bool {
	return &v
}

// DurationPtr returns a pointer to d. Convenience for building a Spec.
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------
// EvalContext
// -----------------------------------------------------------------------------

// EvalContext is the per-unit argument handed to context-aware implementations.
//
// The runner builds one per invocation from the unit's resolved Spec via
// Unit.NewContext; implementations read the case input and may record
// output and scores on it.
type EvalContext struct {
	// Name is the unit display name, e.g. "qa[easy]".
	Name string

	Input           any
	Reference       any
	DefaultScoreKey string
	Dataset         string
	Labels          []string
	Metadata        map[string]any

	// Output is set by the implementation.
	Output any

	// Scores is keyed by score name.
	Scores map[string]float64
}

// Score records a score under key, or under DefaultScoreKey when key is empty.
func (c *EvalContext) Score(key string, value float64) {
	if key == "" {
		key = c.DefaultScoreKey
	}
	if c.Scores == nil {
		c.Scores = make(map[string]float64)
	}
	c.Scores[key] = value
}
