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
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

// Function is an evaluation function as registered.
//
// Spec is nil for a raw, undecorated function. Cases is nil when the
// function is not parameterized.
type Function struct {
	Name  string
	Impl  any
	Spec  *Spec
	Cases *CaseTable
}

// Unit is one fully specified, independently runnable evaluation.
type Unit struct {
	// Name is "<function>[<id-or-index>]", or the function name when the
	// function has no case table.
	Name string

	// Function is the base function name.
	Function string

	// Index is the zero-based case position.
	Index int

	// ID is the case id, nil when the case had none.
	ID *string

	// Callable forwards to the shared implementation.
	Callable Callable

	// Spec is the resolved specification for this case.
	Spec Spec
}

// NewContext builds a fresh EvalContext from the unit's resolved settings.
func (u Unit) NewContext() *EvalContext {
	ec := &EvalContext{
		Name:      u.Name,
		Input:     u.Spec.Input,
		Reference: u.Spec.Reference,
		Labels:    cloneSlice(u.Spec.Labels),
		Metadata:  cloneMap(u.Spec.Metadata),
	}
	if u.Spec.DefaultScoreKey != nil {
		ec.DefaultScoreKey = *u.Spec.DefaultScoreKey
	}
	if u.Spec.Dataset != nil {
		ec.Dataset = *u.Spec.Dataset
	}
	return ec
}

// UnitName formats the display name for case idx.
//
// An absent or empty id falls back to the index.
func UnitName(base string, id *string, idx int) string {
	label := strconv.Itoa(idx)
	if id != nil && *id != "" {
		label = *id
	}
	return base + "[" + label + "]"
}

// Expand turns a parameterized function into one unit per case.
//
// Description:
//
//	Resolves the calling convention once, then for every case in table
//	order merges the base specification with the case overrides and
//	synthesizes a callable. A raw function (nil Spec) expands against a
//	zero Spec. Expansion is atomic: on error no units are returned.
//
// Inputs:
//   - fn: The function. fn.Cases must be non-nil.
//
// Outputs:
//   - []Unit: Units in case-table order.
//   - error: *SpecificationError when fn has no case table or its
//     implementation does not match its specification.
//
// Thread Safety: Pure function; safe for concurrent use.
func Expand(fn Function) ([]Unit, error) {
	units, err := expand(fn)
	if err != nil {
		telemetry.ExpansionFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	telemetry.CasesExpanded.Add(float64(len(units)))
	return units, nil
}

func expand(fn Function) ([]Unit, error) {
	if fn.Cases == nil {
		return nil, &SpecificationError{Function: fn.Name, Reason: "has no case table"}
	}

	conv, err := ResolveConvention(fn.Name, fn.Spec, fn.Impl)
	if err != nil {
		return nil, err
	}

	var base Spec
	if fn.Spec != nil {
		base = fn.Spec.Clone()
	}
	base.ContextParam = BoolPtr(conv.ContextAware)

	units := make([]Unit, 0, fn.Cases.Len())
	for idx := range fn.Cases.Overrides {
		unit, err := buildUnit(fn, base, conv, idx)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// buildUnit reads case idx from the immutable table.
func buildUnit(fn Function, base Spec, conv Convention, idx int) (Unit, error) {
	id := clonePtr(fn.Cases.IDs[idx])
	name := UnitName(fn.Name, id, idx)

	callable, err := Synthesize(name, conv, fn.Impl)
	if err != nil {
		return Unit{}, err
	}

	return Unit{
		Name:     name,
		Function: fn.Name,
		Index:    idx,
		ID:       id,
		Callable: callable,
		Spec:     Merge(base, fn.Cases.Overrides[idx]),
	}, nil
}

// ExpandFunc normalizes raw and expands impl against it in one step.
//
// Description:
//
//	Convenience for callers that hold a raw declaration instead of a
//	registered Function. Normalization runs to completion first, so a
//	malformed declaration yields a *ValidationError and no units. A nil
//	declaration is a *SpecificationError: there is nothing to expand.
//
// Inputs:
//   - name: Base function name used in unit display names.
//   - impl: The shared implementation.
//   - spec: The base specification, or nil for a raw function.
//   - raw: The case declaration.
//
// Outputs:
//   - []Unit: Units in declaration order.
//   - error: *ValidationError or *SpecificationError.
func ExpandFunc(name string, impl any, spec *Spec, raw any) ([]Unit, error) {
	table, err := Normalize(raw)
	if err != nil {
		telemetry.ExpansionFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	return Expand(Function{Name: name, Impl: impl, Spec: spec, Cases: table})
}

// ExpandContext is Expand wrapped in a trace span.
func ExpandContext(ctx context.Context, fn Function) ([]Unit, error) {
	_, span := telemetry.Tracer().Start(ctx, "cases.Expand",
		trace.WithAttributes(telemetry.AttrFunction.String(fn.Name)))
	defer span.End()

	units, err := Expand(fn)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(telemetry.AttrUnits.Int(len(units)))
	return units, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSpecification):
		return "specification"
	default:
		return "other"
	}
}
