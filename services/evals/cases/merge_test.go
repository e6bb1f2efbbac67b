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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSpec() Spec {
	return Spec{
		Dataset:            StringPtr("qa"),
		Labels:             []string{"a", "b"},
		Evaluators:         []EvaluatorRef{"exact"},
		Target:             StringPtr("model"),
		Input:              "base-input",
		DefaultScoreKey:    StringPtr("correct"),
		Metadata:           map[string]any{"j": 0},
		Timeout:            DurationPtr(30 * time.Second),
		ProvidedLabels:     ProvenanceProvided,
		ProvidedEvaluators: ProvenanceProvided,
	}
}

func TestMerge_NoOverridesIsIdentity(t *testing.T) {
	base := baseSpec()
	got := Merge(base, Overrides{})
	assert.Equal(t, base, got)
}

func TestMerge_InheritedLabelsNeverNil(t *testing.T) {
	got := Merge(Spec{}, Overrides{})
	require.NotNil(t, got.Labels)
	assert.Equal(t, []string{}, got.Labels)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"labels":[]`)
}

func TestMerge_Labels(t *testing.T) {
	tests := []struct {
		name string
		f    Field[[]string]
		want []string
	}{
		{"inherit", Inherit[[]string](), []string{"a", "b"}},
		{"explicit empty clears", Replace([]string{}), []string{}},
		{"nil clears", Clear[[]string](), []string{}},
		{"append new", Replace([]string{"x"}), []string{"a", "b", "x"}},
		{"dedup base first", Replace([]string{"a", "y"}), []string{"a", "b", "y"}},
		{"dedup within case", Replace([]string{"y", "y"}), []string{"a", "b", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(baseSpec(), Overrides{Labels: tt.f})
			assert.Equal(t, tt.want, got.Labels)
		})
	}
}

func TestMerge_Metadata(t *testing.T) {
	t.Run("shallow merge", func(t *testing.T) {
		got := Merge(baseSpec(), Overrides{Metadata: Replace(map[string]any{"k": 1})})
		assert.Equal(t, map[string]any{"j": 0, "k": 1}, got.Metadata)
	})

	t.Run("case wins on conflict", func(t *testing.T) {
		got := Merge(baseSpec(), Overrides{Metadata: Replace(map[string]any{"j": 9})})
		assert.Equal(t, map[string]any{"j": 9}, got.Metadata)
	})

	t.Run("nil clears regardless of base", func(t *testing.T) {
		got := Merge(baseSpec(), Overrides{Metadata: Clear[map[string]any]()})
		assert.Nil(t, got.Metadata)
	})

	t.Run("empty result is nil", func(t *testing.T) {
		base := baseSpec()
		base.Metadata = nil
		got := Merge(base, Overrides{Metadata: Replace(map[string]any{})})
		assert.Nil(t, got.Metadata)
	})
}

func TestMerge_Evaluators(t *testing.T) {
	got := Merge(baseSpec(), Overrides{Evaluators: Clear[[]EvaluatorRef]()})
	assert.NotNil(t, got.Evaluators)
	assert.Empty(t, got.Evaluators)
	assert.Equal(t, ProvenanceExplicitEmpty, got.ProvidedEvaluators)
	assert.Equal(t, ProvenanceProvided, got.ProvidedLabels)

	got = Merge(baseSpec(), Overrides{Evaluators: Replace([]EvaluatorRef{"fuzzy"})})
	assert.Equal(t, []EvaluatorRef{"fuzzy"}, got.Evaluators)
}

func TestMerge_ScalarsReplacedOrCleared(t *testing.T) {
	got := Merge(baseSpec(), Overrides{
		Dataset:         Clear[string](),
		Target:          Replace("other"),
		Input:           Replace[any]("x"),
		Reference:       Replace[any](42),
		DefaultScoreKey: Clear[string](),
		Timeout:         Replace(5 * time.Second),
	})

	assert.Nil(t, got.Dataset)
	require.NotNil(t, got.Target)
	assert.Equal(t, "other", *got.Target)
	assert.Equal(t, "x", got.Input)
	assert.Equal(t, 42, got.Reference)
	assert.Nil(t, got.DefaultScoreKey)
	require.NotNil(t, got.Timeout)
	assert.Equal(t, 5*time.Second, *got.Timeout)
}

func TestMerge_ProvenanceOnDeclaredLabels(t *testing.T) {
	got := Merge(baseSpec(), Overrides{Labels: Replace([]string{"x"})})
	assert.Equal(t, ProvenanceExplicitEmpty, got.ProvidedLabels)
	assert.Equal(t, ProvenanceProvided, got.ProvidedEvaluators)
}

func TestMerge_DoesNotAliasBase(t *testing.T) {
	base := baseSpec()
	got := Merge(base, Overrides{})

	got.Labels[0] = "mutated"
	got.Metadata["j"] = 99
	*got.Dataset = "mutated"

	assert.Equal(t, []string{"a", "b"}, base.Labels)
	assert.Equal(t, 0, base.Metadata["j"])
	assert.Equal(t, "qa", *base.Dataset)
}
