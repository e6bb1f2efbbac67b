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
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNormalize_Nil(t *testing.T) {
	table, err := Normalize(nil)
	require.NoError(t, err)
	assert.Nil(t, table)
	assert.Equal(t, 0, table.Len())
}

func TestNormalize_PreservesOrderAndIDs(t *testing.T) {
	table, err := Normalize([]map[string]any{
		{"id": "a", "input": "x"},
		{"input": "y"},
		{"id": 7},
	})
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	require.Len(t, table.IDs, 3)

	require.NotNil(t, table.IDs[0])
	assert.Equal(t, "a", *table.IDs[0])
	assert.Nil(t, table.IDs[1])
	require.NotNil(t, table.IDs[2])
	assert.Equal(t, "7", *table.IDs[2])

	v, ok := table.Overrides[0].Input.Value()
	require.True(t, ok)
	assert.Equal(t, "x", v)
	v, _ = table.Overrides[1].Input.Value()
	assert.Equal(t, "y", v)
	assert.True(t, table.Overrides[2].IsEmpty())
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	raw := []map[string]any{{"id": "a", "input": 1}}
	_, err := Normalize(raw)
	require.NoError(t, err)
	assert.Contains(t, raw[0], "id")
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		wantIndex int
		wantKeys  []string
		contains  string
	}{
		{
			name:      "not a list",
			raw:       map[string]any{"input": 1},
			wantIndex: -1,
			contains:  "cases must be a list of dicts",
		},
		{
			name:      "string is not a list",
			raw:       "input",
			wantIndex: -1,
			contains:  "cases must be a list of dicts",
		},
		{
			name:      "element not a mapping",
			raw:       []any{map[string]any{"input": 1}, 42},
			wantIndex: 1,
			contains:  "case 1 must be a dict",
		},
		{
			name:      "unknown keys sorted",
			raw:       []any{map[string]any{"input": 1}, map[string]any{"zeta": 1, "foo": 2}},
			wantIndex: 1,
			wantKeys:  []string{"foo", "zeta"},
			contains:  "unknown case keys: foo, zeta",
		},
		{
			name:      "labels not strings",
			raw:       []any{map[string]any{"labels": []any{"a", 3}}},
			wantIndex: 0,
			wantKeys:  []string{"labels"},
			contains:  "labels must be a list of strings",
		},
		{
			name:      "metadata not a mapping",
			raw:       []any{map[string]any{"metadata": "k=v"}},
			wantIndex: 0,
			wantKeys:  []string{"metadata"},
			contains:  "metadata must be a mapping",
		},
		{
			name:      "negative timeout",
			raw:       []any{map[string]any{"timeout": -1}},
			wantIndex: 0,
			wantKeys:  []string{"timeout"},
			contains:  "timeout must be non-negative",
		},
		{
			name:      "dataset not a string",
			raw:       []any{map[string]any{"dataset": 5}},
			wantIndex: 0,
			wantKeys:  []string{"dataset"},
			contains:  "dataset must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.Nil(t, table)
			assert.True(t, errors.Is(err, ErrValidation))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantIndex, verr.Index)
			if tt.wantKeys != nil {
				assert.Equal(t, tt.wantKeys, verr.Keys)
			}
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNormalize_UnknownKeyFailsWholeTable(t *testing.T) {
	raw := []any{
		map[string]any{"id": "ok", "input": 1},
		map[string]any{"id": "ok2", "labels": []string{"x"}},
		map[string]any{"foo": 1},
	}
	table, err := Normalize(raw)
	assert.Nil(t, table)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalize_FieldKinds(t *testing.T) {
	table, err := Normalize([]any{
		map[string]any{
			"input":      nil,
			"labels":     []any{"a", "b"},
			"metadata":   nil,
			"evaluators": []any{"exact", EvaluatorRef("fuzzy")},
		},
	})
	require.NoError(t, err)
	o := table.Overrides[0]

	assert.Equal(t, FieldClear, o.Input.Kind())
	assert.Equal(t, FieldReplace, o.Labels.Kind())
	assert.Equal(t, FieldClear, o.Metadata.Kind())
	assert.Equal(t, FieldInherit, o.Dataset.Kind())
	assert.Equal(t, []string{"evaluators", "input", "labels", "metadata"}, o.Keys())

	refs, ok := o.Evaluators.Value()
	require.True(t, ok)
	assert.Equal(t, []EvaluatorRef{"exact", "fuzzy"}, refs)
}

func TestNormalize_Timeouts(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Duration
	}{
		{"int seconds", 30, 30 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration string", "2m", 2 * time.Minute},
		{"numeric string", "45", 45 * time.Second},
		{"duration value", 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Normalize([]any{map[string]any{"timeout": tt.in}})
			require.NoError(t, err)
			got, ok := table.Overrides[0].Timeout.Value()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_TimeoutOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nan", math.NaN(), "must be a duration"},
		{"positive infinity", math.Inf(1), "must be a duration"},
		{"negative infinity", math.Inf(-1), "must be a duration"},
		{"float overflow", 1e300, "must be a duration"},
		{"int overflow", int64(math.MaxInt64), "must be a duration"},
		{"nan string", "NaN", "must be a duration"},
		{"huge numeric string", "1e400", "must be a duration"},
		{"negative seconds", -5, "must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Normalize([]any{map[string]any{"timeout": tt.in}})
			assert.Nil(t, table)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []string{"timeout"}, verr.Keys)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNormalize_YAMLInfiniteTimeout(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("- timeout: .inf\n- timeout: .nan\n"), &raw))
	_, err := Normalize(raw)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "case 0: timeout must be a duration")
}

func TestNormalize_FirstBadKeyIsStable(t *testing.T) {
	entry := map[string]any{
		"target":     1,
		"dataset":    2,
		"labels":     "not-a-list",
		"metadata":   []any{},
		"timeout":    "soon",
		"evaluators": 3,
	}
	for i := 0; i < 20; i++ {
		_, err := Normalize([]any{entry})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"dataset"}, verr.Keys)
		assert.Equal(t, "case 0: dataset must be a string", verr.Reason)
	}
}

func TestNormalize_YAMLDeclaration(t *testing.T) {
	src := `
- id: easy
  input: "2+2"
  reference: "4"
- id: hard
  input: "17*23"
  labels: [slow]
  metadata:
    difficulty: 3
  timeout: 10
`
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte(src), &raw))

	table, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "hard", *table.IDs[1])

	md, ok := table.Overrides[1].Metadata.Value()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"difficulty": 3}, md)

	d, ok := table.Overrides[1].Timeout.Value()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, d)
}

func TestReservedKeys(t *testing.T) {
	keys := ReservedKeys()
	assert.Len(t, keys, 9)
	assert.IsIncreasing(t, keys)
	assert.NotContains(t, keys, KeyID)
}
