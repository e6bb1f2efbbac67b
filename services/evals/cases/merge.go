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

// Merge combines a base specification with one case's overrides.
//
// Description:
//
//	Presence of a key decides override versus inherit:
//
//	  dataset, target, input, reference,   absent: base
//	  default_score_key, timeout           present: replaced, nil included
//
//	  labels                               absent: base
//	                                       nil or empty: []
//	                                       otherwise: base labels, then new
//	                                       case labels in case order
//
//	  evaluators                           absent: base
//	                                       nil: []
//	                                       otherwise: replaced
//
//	  metadata                             absent: base
//	                                       nil: nil
//	                                       otherwise: base overlaid with case
//
//	Provenance of labels and evaluators is inherited from base unless the
//	case declares the key, in which case it becomes ProvenanceExplicitEmpty.
//
// Inputs:
//   - base: The registered specification. Not modified.
//   - o: One case's overrides.
//
// Outputs:
//   - Spec: The resolved specification. Shares no slices or maps with base.
//
// Thread Safety: Pure function; safe for concurrent use.
func Merge(base Spec, o Overrides) Spec {
	out := base.Clone()

	out.Dataset = resolvePtr(base.Dataset, o.Dataset)
	out.Target = resolvePtr(base.Target, o.Target)
	out.DefaultScoreKey = resolvePtr(base.DefaultScoreKey, o.DefaultScoreKey)
	out.Timeout = resolvePtr(base.Timeout, o.Timeout)
	out.Input = resolveAny(base.Input, o.Input)
	out.Reference = resolveAny(base.Reference, o.Reference)

	out.Labels = mergeLabels(base.Labels, o.Labels)
	out.Evaluators = mergeEvaluators(base.Evaluators, o.Evaluators)
	out.Metadata = mergeMetadata(base.Metadata, o.Metadata)

	if o.Labels.Present() {
		out.ProvidedLabels = ProvenanceExplicitEmpty
	}
	if o.Evaluators.Present() {
		out.ProvidedEvaluators = ProvenanceExplicitEmpty
	}

	return out
}

func resolvePtr[T any](base *T, f Field[T]) *T {
	switch f.Kind() {
	case FieldClear:
		return nil
	case FieldReplace:
		v := f.value
		return &v
	default:
		return clonePtr(base)
	}
}

func resolveAny(base any, f Field[any]) any {
	switch f.Kind() {
	case FieldClear:
		return nil
	case FieldReplace:
		return f.value
	default:
		return base
	}
}

// mergeLabels keeps base order first and appends unseen case labels.
// The result is never nil.
func mergeLabels(base []string, f Field[[]string]) []string {
	switch f.Kind() {
	case FieldInherit:
		if base == nil {
			return []string{}
		}
		return cloneSlice(base)
	case FieldClear:
		return []string{}
	}
	if len(f.value) == 0 {
		return []string{}
	}

	out := make([]string, 0, len(base)+len(f.value))
	seen := make(map[string]struct{}, len(base)+len(f.value))
	for _, l := range base {
		out = append(out, l)
		seen[l] = struct{}{}
	}
	for _, l := range f.value {
		if _, ok := seen[l]; ok {
			continue
		}
		out = append(out, l)
		seen[l] = struct{}{}
	}
	return out
}

func mergeEvaluators(base []EvaluatorRef, f Field[[]EvaluatorRef]) []EvaluatorRef {
	switch f.Kind() {
	case FieldClear:
		return []EvaluatorRef{}
	case FieldReplace:
		out := make([]EvaluatorRef, len(f.value))
		copy(out, f.value)
		return out
	default:
		return cloneSlice(base)
	}
}

// mergeMetadata overlays case keys on base. Absence is nil, never an empty map.
func mergeMetadata(base map[string]any, f Field[map[string]any]) map[string]any {
	switch f.Kind() {
	case FieldInherit:
		return cloneMap(base)
	case FieldClear:
		return nil
	}

	merged := make(map[string]any, len(base)+len(f.value))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range f.value {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}
