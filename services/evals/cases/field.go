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
	"sort"
	"time"
)

// -----------------------------------------------------------------------------
// Field
// -----------------------------------------------------------------------------

// FieldKind is the override state of a single case field.
type FieldKind int

const (
	// FieldInherit means the key was absent; the base value is kept.
	FieldInherit FieldKind = iota
	// FieldClear means the key was present with a nil value.
	FieldClear
	// FieldReplace means the key was present with a concrete value.
	FieldReplace
)

// String returns the string representation of a FieldKind.
func (k FieldKind) String() string {
	switch k {
	case FieldInherit:
		return "inherit"
	case FieldClear:
		return "clear"
	case FieldReplace:
		return "replace"
	default:
		return fmt.Sprintf("field_kind(%d)", k)
	}
}

// Field is one override slot of a case. The zero value inherits.
type Field[T any] struct {
	kind  FieldKind
	value T
}

// Inherit returns a field that keeps the base value.
func Inherit[T any]() Field[T] {
	return Field[T]{}
}

// Clear returns a field that was declared with a nil value.
func Clear[T any]() Field[T] {
	return Field[T]{kind: FieldClear}
}

// Replace returns a field carrying an explicit value.
func Replace[T any](v T) Field[T] {
	return Field[T]{kind: FieldReplace, value: v}
}

// Kind returns the override state.
func (f Field[T]) Kind() FieldKind {
	return f.kind
}

// Present reports whether the key appeared in the case at all.
func (f Field[T]) Present() bool {
	return f.kind != FieldInherit
}

// Value returns the replacement value and whether one was set.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.kind == FieldReplace
}

// -----------------------------------------------------------------------------
// Overrides
// -----------------------------------------------------------------------------

// Overrides holds one case's settings, restricted to the reserved key set.
type Overrides struct {
	Input           Field[any]
	Reference       Field[any]
	Metadata        Field[map[string]any]
	Dataset         Field[string]
	Labels          Field[[]string]
	DefaultScoreKey Field[string]
	Timeout         Field[time.Duration]
	Target          Field[string]
	Evaluators      Field[[]EvaluatorRef]
}

// Keys returns the names of the keys present in the case, sorted.
func (o Overrides) Keys() []string {
	present := map[string]bool{
		KeyInput:           o.Input.Present(),
		KeyReference:       o.Reference.Present(),
		KeyMetadata:        o.Metadata.Present(),
		KeyDataset:         o.Dataset.Present(),
		KeyLabels:          o.Labels.Present(),
		KeyDefaultScoreKey: o.DefaultScoreKey.Present(),
		KeyTimeout:         o.Timeout.Present(),
		KeyTarget:          o.Target.Present(),
		KeyEvaluators:      o.Evaluators.Present(),
	}
	keys := make([]string, 0, len(present))
	for k, ok := range present {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether no reserved key was declared.
func (o Overrides) IsEmpty() bool {
	return len(o.Keys()) == 0
}
