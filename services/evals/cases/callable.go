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

// Callable is a named, independently schedulable entry point for one unit.
//
// Description:
//
//	Every Callable wraps the shared implementation of its function in its
//	own forwarding closure. Arguments are passed through unchanged.
//	Callers pick Call for blocking execution or Start for asynchronous
//	execution regardless of the underlying convention.
//
// Thread Safety: Safe for concurrent use if the implementation is.
type Callable struct {
	name string
	b    boundImpl
}

// Synthesize builds the callable for one case.
//
// Description:
//
//	Produces a fresh wrapper of exactly the given convention that forwards
//	to impl. The wrapper captures impl only; nothing from the caller's
//	loop. The implementation itself is never copied or specialized.
//
// Inputs:
//   - name: Display name, e.g. "qa[easy]". Duplicates are allowed.
//   - conv: The convention resolved for the base function.
//   - impl: The shared implementation. Must match conv.
//
// Outputs:
//   - Callable: The synthesized callable.
//   - error: *SpecificationError if impl is unsupported or does not match conv.
//
// Thread Safety: Pure function; safe for concurrent use.
func Synthesize(name string, conv Convention, impl any) (Callable, error) {
	b, err := bindImpl(name, impl)
	if err != nil {
		return Callable{}, err
	}
	if b.conv != conv {
		return Callable{}, &SpecificationError{
			Function: name,
			Reason:   fmt.Sprintf("implementation is %s, expected %s", b.conv, conv),
		}
	}

	wrapped := boundImpl{conv: conv}
	switch {
	case conv.ContextAware && !conv.Async:
		wrapped.ctxFn = forwardContext(b.ctxFn)
	case conv.ContextAware && conv.Async:
		wrapped.asyncCtxFn = forwardAsyncContext(b.asyncCtxFn)
	case !conv.ContextAware && !conv.Async:
		wrapped.plainFn = forwardPlain(b.plainFn)
	default:
		wrapped.asyncFn = forwardAsyncPlain(b.asyncFn)
	}

	return Callable{name: name, b: wrapped}, nil
}

func forwardContext(fn ContextFunc) ContextFunc {
	return func(ctx context.Context, ec *EvalContext, args ...any) (any, error) {
		return fn(ctx, ec, args...)
	}
}

func forwardPlain(fn PlainFunc) PlainFunc {
	return func(ctx context.Context, args ...any) (any, error) {
		return fn(ctx, args...)
	}
}

func forwardAsyncContext(fn AsyncContextFunc) AsyncContextFunc {
	return func(ctx context.Context, ec *EvalContext, args ...any) <-chan Outcome {
		return fn(ctx, ec, args...)
	}
}

func forwardAsyncPlain(fn AsyncPlainFunc) AsyncPlainFunc {
	return func(ctx context.Context, args ...any) <-chan Outcome {
		return fn(ctx, args...)
	}
}

// Name returns the display name.
func (c Callable) Name() string {
	return c.name
}

// Convention returns the calling convention of the wrapped implementation.
func (c Callable) Convention() Convention {
	return c.b.conv
}

// Func returns the synthesized wrapper as one of the four implementation types.
//
// Runners that dispatch on the convention themselves type-switch on the result.
func (c Callable) Func() any {
	switch {
	case c.b.ctxFn != nil:
		return c.b.ctxFn
	case c.b.plainFn != nil:
		return c.b.plainFn
	case c.b.asyncCtxFn != nil:
		return c.b.asyncCtxFn
	case c.b.asyncFn != nil:
		return c.b.asyncFn
	default:
		return nil
	}
}

// IsZero reports whether the callable was never synthesized.
func (c Callable) IsZero() bool {
	return c.Func() == nil
}

// Call invokes the callable and blocks until it produces a result.
//
// Description:
//
//	Positional callables ignore ec. Asynchronous callables are awaited;
//	ctx cancellation abandons the wait. A channel closed without an
//	Outcome yields (nil, nil).
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - ec: The evaluation context for context-aware callables.
//   - args: Forwarded unchanged.
//
// Outputs:
//   - any: The implementation's return value.
//   - error: The implementation's error, or ctx.Err() if cancelled while waiting.
func (c Callable) Call(ctx context.Context, ec *EvalContext, args ...any) (any, error) {
	switch {
	case c.b.ctxFn != nil:
		return c.b.ctxFn(ctx, ec, args...)
	case c.b.plainFn != nil:
		return c.b.plainFn(ctx, args...)
	case c.b.asyncCtxFn != nil:
		return await(ctx, c.b.asyncCtxFn(ctx, ec, args...))
	case c.b.asyncFn != nil:
		return await(ctx, c.b.asyncFn(ctx, args...))
	default:
		return nil, &SpecificationError{Function: c.name, Reason: "was never synthesized"}
	}
}

// Start invokes the callable without blocking.
//
// Synchronous callables run on a new goroutine. The returned channel
// delivers exactly one Outcome and is then closed.
func (c Callable) Start(ctx context.Context, ec *EvalContext, args ...any) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		v, err := c.Call(ctx, ec, args...)
		out <- Outcome{Value: v, Err: err}
	}()
	return out
}

func await(ctx context.Context, ch <-chan Outcome) (any, error) {
	if ch == nil {
		return nil, nil
	}
	select {
	case o, ok := <-ch:
		if !ok {
			return nil, nil
		}
		return o.Value, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
