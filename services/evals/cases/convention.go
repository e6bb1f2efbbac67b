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
	"fmt"
)

// -----------------------------------------------------------------------------
// Implementation Shapes
// -----------------------------------------------------------------------------

// Outcome is the result delivered by an asynchronous implementation.
type Outcome struct {
	Value any
	Err   error
}

// ContextFunc is a synchronous implementation that receives an EvalContext.
type ContextFunc func(ctx context.Context, ec *EvalContext, args ...any) (any, error)

// PlainFunc is a synchronous implementation that takes positional arguments only.
type PlainFunc func(ctx context.Context, args ...any) (any, error)

// AsyncContextFunc is an asynchronous implementation that receives an EvalContext.
//
// It must deliver at most one Outcome and close the channel.
type AsyncContextFunc func(ctx context.Context, ec *EvalContext, args ...any) <-chan Outcome

// AsyncPlainFunc is an asynchronous implementation that takes positional arguments only.
//
// It must deliver at most one Outcome and close the channel.
type AsyncPlainFunc func(ctx context.Context, args ...any) <-chan Outcome

// -----------------------------------------------------------------------------
// Convention
// -----------------------------------------------------------------------------

// Convention is how an implementation is called.
type Convention struct {
	// ContextAware is true when the implementation takes an *EvalContext.
	ContextAware bool

	// Async is true when the implementation returns a channel of Outcome.
	Async bool
}

// String returns e.g. "context/sync" or "positional/async".
func (c Convention) String() string {
	first, second := "positional", "sync"
	if c.ContextAware {
		first = "context"
	}
	if c.Async {
		second = "async"
	}
	return first + "/" + second
}

// DetectConvention inspects an implementation's type.
//
// Description:
//
//	The fallback used when no registered specification records the
//	context flag. Accepts the four named implementation types and the
//	equivalent unnamed func types.
//
// Inputs:
//   - impl: The implementation. Must be one of the four shapes.
//
// Outputs:
//   - Convention: The detected calling convention.
//   - error: *SpecificationError if impl is nil or of an unsupported type.
func DetectConvention(impl any) (Convention, error) {
	b, err := bindImpl("", impl)
	if err != nil {
		return Convention{}, err
	}
	return b.conv, nil
}

// ResolveConvention determines the convention for a function.
//
// Description:
//
//	When spec declares ContextParam that flag decides context awareness;
//	otherwise the implementation type is inspected. Sync versus async
//	always comes from the implementation type. A flag the implementation
//	cannot honour is a usage error.
//
// Inputs:
//   - name: Function name for error messages.
//   - spec: The registered specification, or nil for a raw function.
//     A nil ContextParam is treated like a nil spec.
//   - impl: The implementation.
//
// Outputs:
//   - Convention: The resolved convention.
//   - error: *SpecificationError on unsupported impl or flag mismatch.
func ResolveConvention(name string, spec *Spec, impl any) (Convention, error) {
	b, err := bindImpl(name, impl)
	if err != nil {
		return Convention{}, err
	}
	if spec == nil || spec.ContextParam == nil {
		return b.conv, nil
	}
	if declared := *spec.ContextParam; declared != b.conv.ContextAware {
		return Convention{}, &SpecificationError{
			Function: name,
			Reason: fmt.Sprintf("declares context_param=%t but implementation is %s",
				declared, b.conv),
		}
	}
	return b.conv, nil
}

// boundImpl holds an implementation under its normalized named type.
type boundImpl struct {
	conv       Convention
	ctxFn      ContextFunc
	plainFn    PlainFunc
	asyncCtxFn AsyncContextFunc
	asyncFn    AsyncPlainFunc
}

func bindImpl(name string, impl any) (boundImpl, error) {
	var b boundImpl
	switch fn := impl.(type) {
	case ContextFunc:
		b.ctxFn = fn
	case func(context.Context, *EvalContext, ...any) (any, error):
		b.ctxFn = fn
	case PlainFunc:
		b.plainFn = fn
	case func(context.Context, ...any) (any, error):
		b.plainFn = fn
	case AsyncContextFunc:
		b.asyncCtxFn = fn
	case func(context.Context, *EvalContext, ...any) <-chan Outcome:
		b.asyncCtxFn = fn
	case AsyncPlainFunc:
		b.asyncFn = fn
	case func(context.Context, ...any) <-chan Outcome:
		b.asyncFn = fn
	case nil:
		return b, &SpecificationError{Function: name, Reason: "has a nil implementation"}
	default:
		return b, &SpecificationError{Function: name, Reason: fmt.Sprintf("has unsupported implementation type %T", impl)}
	}

	switch {
	case b.ctxFn != nil:
		b.conv = Convention{ContextAware: true}
	case b.plainFn != nil:
		b.conv = Convention{}
	case b.asyncCtxFn != nil:
		b.conv = Convention{ContextAware: true, Async: true}
	case b.asyncFn != nil:
		b.conv = Convention{Async: true}
	default:
		// Typed nil func values land here.
		return b, &SpecificationError{Function: name, Reason: "has a nil implementation"}
	}
	return b, nil
}
