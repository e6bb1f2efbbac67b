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
	"sort"
	"sync"
)

// Registry associates evaluation functions with their specification and
// case table.
//
// Description:
//
//	Registration replaces attaching attributes to a function value: the
//	specification and normalized case table live in a Function record
//	keyed by name. Case tables are normalized at registration so a
//	malformed declaration is rejected at load time.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*Function
	hooks     []RegistrationHook
}

// RegistrationHook is called when a function is registered or unregistered.
type RegistrationHook func(name string, fn Function, registered bool)

// NewRegistry creates a new empty registry.
//
// Outputs:
//   - *Registry: The new registry. Never nil.
func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[string]*Function),
		hooks:     make([]RegistrationHook, 0),
	}
}

// Option configures a registration.
type Option func(*registration)

type registration struct {
	spec         *Spec
	contextParam *bool
	raw          any
	hasCases     bool
}

// WithSpec attaches a base specification, marking the function as decorated.
//
// The registry stores a copy; later changes to spec have no effect.
func WithSpec(spec Spec) Option {
	return func(r *registration) {
		s := spec.Clone()
		r.spec = &s
	}
}

// WithContextParam records explicitly whether the implementation takes an
// EvalContext. Without it the flag is detected from the implementation type.
func WithContextParam(v bool) Option {
	return func(r *registration) {
		r.contextParam = &v
	}
}

// WithCases parameterizes the function with a raw case declaration.
func WithCases(raw any) Option {
	return func(r *registration) {
		r.raw = raw
		r.hasCases = true
	}
}

// Register adds an evaluation function to the registry.
//
// Description:
//
//	Normalizes the case declaration (if any) and records the context flag
//	on the stored Spec. WithContextParam takes precedence over the flag in
//	WithSpec; when neither declares it, the flag is detected from impl. A
//	declared flag that impl cannot honour is rejected here rather than at
//	expansion. Nothing is stored on error.
//
// Inputs:
//   - name: Unique function name. Must not be empty.
//   - impl: One of the four implementation shapes. Must not be nil.
//   - opts: WithSpec, WithContextParam, WithCases.
//
// Outputs:
//   - error: ErrNilImpl, ErrAlreadyRegistered, *ValidationError for a
//     malformed case declaration, or *SpecificationError for an
//     unsupported implementation or a context_param mismatch.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	err := registry.Register("qa", cases.PlainFunc(answer),
//	    cases.WithSpec(cases.Spec{Labels: []string{"prod"}}),
//	    cases.WithCases([]map[string]any{{"id": "a", "input": "x"}}),
//	)
func (r *Registry) Register(name string, impl any, opts ...Option) error {
	if impl == nil {
		return ErrNilImpl
	}
	if name == "" {
		return &SpecificationError{Reason: "function name is required"}
	}

	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	fn := &Function{Name: name, Impl: impl}
	if reg.spec != nil || reg.contextParam != nil {
		spec := Spec{}
		if reg.spec != nil {
			spec = *reg.spec
		}
		if reg.contextParam != nil {
			spec.ContextParam = BoolPtr(*reg.contextParam)
		}
		fn.Spec = &spec
	}

	conv, err := ResolveConvention(name, fn.Spec, impl)
	if err != nil {
		return err
	}
	if fn.Spec != nil && fn.Spec.ContextParam == nil {
		fn.Spec.ContextParam = BoolPtr(conv.ContextAware)
	}

	if reg.hasCases {
		table, err := Normalize(reg.raw)
		if err != nil {
			return err
		}
		fn.Cases = table
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.functions[name] = fn

	for _, hook := range r.hooks {
		hook(name, *fn, true)
	}
	return nil
}

// MustRegister registers a function and panics on error.
//
// Should only be used during startup, not at runtime.
func (r *Registry) MustRegister(name string, impl any, opts ...Option) {
	if err := r.Register(name, impl, opts...); err != nil {
		panic(fmt.Sprintf("cases: failed to register %s: %v", name, err))
	}
}

// Unregister removes a function from the registry.
//
// Outputs:
//   - error: nil on success, ErrNotFound if not registered.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, exists := r.functions[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.functions, name)

	for _, hook := range r.hooks {
		hook(name, *fn, false)
	}
	return nil
}

// Get returns a copy of the registered function record.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[name]
	if !ok {
		return Function{}, false
	}
	return *fn, true
}

// List returns all registered function names, sorted.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// AddHook adds a registration hook.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) AddHook(hook RegistrationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Expand expands one registered function.
//
// Outputs:
//   - []Unit: Units in case-table order.
//   - error: ErrNotFound, or *SpecificationError when the function has no
//     case table.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Expand(ctx context.Context, name string) ([]Unit, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return ExpandContext(ctx, fn)
}

// ExpandAll returns the units for every registered function.
//
// Description:
//
//	Functions are visited in name order. A parameterized function
//	contributes its expanded units in case order; a function without a
//	case table contributes a single unit named after the function. The
//	result is all-or-nothing.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//
// Outputs:
//   - []Unit: All units.
//   - error: The first expansion error.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) ExpandAll(ctx context.Context) ([]Unit, error) {
	var units []Unit
	for _, name := range r.List() {
		fn, ok := r.Get(name)
		if !ok {
			continue
		}
		if fn.Cases == nil {
			unit, err := singleUnit(fn)
			if err != nil {
				return nil, err
			}
			units = append(units, unit)
			continue
		}
		expanded, err := ExpandContext(ctx, fn)
		if err != nil {
			return nil, err
		}
		units = append(units, expanded...)
	}
	return units, nil
}

func singleUnit(fn Function) (Unit, error) {
	conv, err := ResolveConvention(fn.Name, fn.Spec, fn.Impl)
	if err != nil {
		return Unit{}, err
	}
	callable, err := Synthesize(fn.Name, conv, fn.Impl)
	if err != nil {
		return Unit{}, err
	}
	var spec Spec
	if fn.Spec != nil {
		spec = fn.Spec.Clone()
	}
	spec.ContextParam = BoolPtr(conv.ContextAware)
	if spec.Labels == nil {
		spec.Labels = []string{}
	}
	return Unit{Name: fn.Name, Function: fn.Name, Callable: callable, Spec: spec}, nil
}

// -----------------------------------------------------------------------------
// Default Registry
// -----------------------------------------------------------------------------

// DefaultRegistry is the global registry instance.
var DefaultRegistry = NewRegistry()

// Register registers a function with the default registry.
func Register(name string, impl any, opts ...Option) error {
	return DefaultRegistry.Register(name, impl, opts...)
}

// MustRegister registers a function with the default registry, panicking on error.
func MustRegister(name string, impl any, opts ...Option) {
	DefaultRegistry.MustRegister(name, impl, opts...)
}
