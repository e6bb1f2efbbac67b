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
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Reserved case keys.
const (
	KeyInput           = "input"
	KeyReference       = "reference"
	KeyMetadata        = "metadata"
	KeyDataset         = "dataset"
	KeyLabels          = "labels"
	KeyDefaultScoreKey = "default_score_key"
	KeyTimeout         = "timeout"
	KeyTarget          = "target"
	KeyEvaluators      = "evaluators"

	// KeyID names a case. It is not an override.
	KeyID = "id"
)

var reservedKeys = map[string]struct{}{
	KeyInput:           {},
	KeyReference:       {},
	KeyMetadata:        {},
	KeyDataset:         {},
	KeyLabels:          {},
	KeyDefaultScoreKey: {},
	KeyTimeout:         {},
	KeyTarget:          {},
	KeyEvaluators:      {},
}

// ReservedKeys returns the keys a case may declare besides "id", sorted.
func ReservedKeys() []string {
	keys := make([]string, 0, len(reservedKeys))
	for k := range reservedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CaseTable is a normalized case declaration.
//
// Overrides and IDs are parallel: IDs[i] names Overrides[i], nil when the
// case had no id. Order is declaration order.
type CaseTable struct {
	Overrides []Overrides
	IDs       []*string
}

// Len returns the number of cases.
func (t *CaseTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Overrides)
}

// Normalize validates a raw case declaration and converts it to a CaseTable.
//
// Description:
//
//	Accepts nil (no parameterization), or any slice whose elements are
//	string-keyed mappings, such as the []any produced by YAML and JSON
//	decoders. Each mapping may hold an optional "id" plus any of the
//	reserved keys. Every case is checked before a table is returned; one
//	bad case rejects the whole declaration.
//
// Inputs:
//   - raw: The declaration. May be nil.
//
// Outputs:
//   - *CaseTable: The normalized table, or nil when raw is nil.
//   - error: *ValidationError when the declaration is not a list, an element
//     is not a mapping, a key is unknown, or a value has the wrong type.
//
// Example:
//
//	table, err := cases.Normalize([]map[string]any{
//	    {"id": "easy", "input": "2+2"},
//	    {"id": "hard", "input": "17*23", "labels": []string{"slow"}},
//	})
func Normalize(raw any) (*CaseTable, error) {
	if raw == nil {
		return nil, nil
	}

	items, ok := asSequence(raw)
	if !ok {
		return nil, &ValidationError{Index: -1, Reason: "cases must be a list of dicts"}
	}

	table := &CaseTable{
		Overrides: make([]Overrides, 0, len(items)),
		IDs:       make([]*string, 0, len(items)),
	}

	for idx, item := range items {
		entry, ok := asMapping(item)
		if !ok {
			return nil, &ValidationError{Index: idx, Reason: fmt.Sprintf("case %d must be a dict", idx)}
		}

		var id *string
		if v, present := entry[KeyID]; present {
			delete(entry, KeyID)
			if v != nil {
				s := fmt.Sprint(v)
				id = &s
			}
		}

		var unknown []string
		for k := range entry {
			if _, ok := reservedKeys[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, newUnknownKeysError(idx, unknown)
		}

		overrides, err := parseOverrides(idx, entry)
		if err != nil {
			return nil, err
		}

		table.Overrides = append(table.Overrides, overrides)
		table.IDs = append(table.IDs, id)
	}

	return table, nil
}

// asSequence flattens any slice or array into []any.
func asSequence(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asMapping returns a fresh string-keyed copy of a mapping value.
func asMapping(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return cloneMap(v), true
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// parseOverrides converts a validated mapping into typed fields.
//
// Keys are visited in sorted order so the first reported error is stable.
func parseOverrides(idx int, entry map[string]any) (Overrides, error) {
	var o Overrides
	var err error

	keys := make([]string, 0, len(entry))
	for key := range entry {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := entry[key]
		switch key {
		case KeyInput:
			o.Input = anyField(value)
		case KeyReference:
			o.Reference = anyField(value)
		case KeyDataset:
			o.Dataset, err = stringField(idx, key, value)
		case KeyTarget:
			o.Target, err = stringField(idx, key, value)
		case KeyDefaultScoreKey:
			o.DefaultScoreKey, err = stringField(idx, key, value)
		case KeyLabels:
			o.Labels, err = labelsField(idx, value)
		case KeyMetadata:
			o.Metadata, err = metadataField(idx, value)
		case KeyTimeout:
			o.Timeout, err = timeoutField(idx, value)
		case KeyEvaluators:
			o.Evaluators, err = evaluatorsField(idx, value)
		}
		if err != nil {
			return Overrides{}, err
		}
	}
	return o, nil
}

func anyField(value any) Field[any] {
	if value == nil {
		return Clear[any]()
	}
	return Replace(value)
}

func stringField(idx int, key string, value any) (Field[string], error) {
	switch v := value.(type) {
	case nil:
		return Clear[string](), nil
	case string:
		return Replace(v), nil
	default:
		return Field[string]{}, newFieldError(idx, key, "a string")
	}
}

func labelsField(idx int, value any) (Field[[]string], error) {
	if value == nil {
		return Clear[[]string](), nil
	}
	if v, ok := value.([]string); ok {
		return Replace(cloneSlice(v)), nil
	}
	items, ok := asSequence(value)
	if !ok {
		return Field[[]string]{}, newFieldError(idx, KeyLabels, "a list of strings")
	}
	labels := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return Field[[]string]{}, newFieldError(idx, KeyLabels, "a list of strings")
		}
		labels = append(labels, s)
	}
	return Replace(labels), nil
}

func metadataField(idx int, value any) (Field[map[string]any], error) {
	if value == nil {
		return Clear[map[string]any](), nil
	}
	m, ok := asMapping(value)
	if !ok {
		return Field[map[string]any]{}, newFieldError(idx, KeyMetadata, "a mapping")
	}
	return Replace(m), nil
}

// maxTimeoutSeconds is the largest whole-second count a time.Duration holds.
const maxTimeoutSeconds = int64(math.MaxInt64 / time.Second)

// timeoutField accepts a time.Duration, a number of seconds, or a duration string.
func timeoutField(idx int, value any) (Field[time.Duration], error) {
	var d time.Duration
	ok := true
	switch v := value.(type) {
	case nil:
		return Clear[time.Duration](), nil
	case time.Duration:
		d = v
	case int:
		d, ok = wholeSeconds(int64(v))
	case int64:
		d, ok = wholeSeconds(v)
	case float64:
		d, ok = fractionalSeconds(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			secs, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return Field[time.Duration]{}, newFieldError(idx, KeyTimeout, "a duration")
			}
			parsed, ok = fractionalSeconds(secs)
		}
		d = parsed
	default:
		ok = false
	}
	if !ok {
		return Field[time.Duration]{}, newFieldError(idx, KeyTimeout, "a duration")
	}
	if d < 0 {
		return Field[time.Duration]{}, newFieldError(idx, KeyTimeout, "non-negative")
	}
	return Replace(d), nil
}

func wholeSeconds(secs int64) (time.Duration, bool) {
	if secs > maxTimeoutSeconds || secs < -maxTimeoutSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// fractionalSeconds rejects NaN, infinities and values outside the Duration range.
func fractionalSeconds(secs float64) (time.Duration, bool) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, false
	}
	ns := secs * float64(time.Second)
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return 0, false
	}
	return time.Duration(ns), true
}

func evaluatorsField(idx int, value any) (Field[[]EvaluatorRef], error) {
	switch v := value.(type) {
	case nil:
		return Clear[[]EvaluatorRef](), nil
	case []EvaluatorRef:
		return Replace(cloneSlice(v)), nil
	case []string:
		refs := make([]EvaluatorRef, len(v))
		for i, s := range v {
			refs[i] = EvaluatorRef(s)
		}
		return Replace(refs), nil
	}

	items, ok := asSequence(value)
	if !ok {
		return Field[[]EvaluatorRef]{}, newFieldError(idx, KeyEvaluators, "a list of evaluator names")
	}
	refs := make([]EvaluatorRef, 0, len(items))
	for _, item := range items {
		switch ref := item.(type) {
		case string:
			refs = append(refs, EvaluatorRef(ref))
		case EvaluatorRef:
			refs = append(refs, ref)
		default:
			return Field[[]EvaluatorRef]{}, newFieldError(idx, KeyEvaluators, "a list of evaluator names")
		}
	}
	return Replace(refs), nil
}
