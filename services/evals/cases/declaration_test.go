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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const qaDeclaration = `
function: qa
spec:
  labels: [prod, prod]
  timeout: 30s
  evaluators: [exact]
  metadata:
    owner: ml
cases:
  - id: a
    input: x
  - id: b
    input: y
    labels: []
---
function: smoke
`

func TestParseDeclarations(t *testing.T) {
	decls, err := ParseDeclarations([]byte(qaDeclaration))
	require.NoError(t, err)
	require.Len(t, decls, 2)

	assert.Equal(t, "qa", decls[0].Function)
	assert.NotNil(t, decls[0].Cases)
	assert.Equal(t, "smoke", decls[1].Function)
	assert.Nil(t, decls[1].Spec)
}

func TestDeclaration_BaseSpec(t *testing.T) {
	decls, err := ParseDeclarations([]byte(qaDeclaration))
	require.NoError(t, err)

	spec, err := decls[0].BaseSpec()
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, []string{"prod"}, spec.Labels)
	assert.Equal(t, ProvenanceProvided, spec.ProvidedLabels)
	assert.Equal(t, []EvaluatorRef{"exact"}, spec.Evaluators)
	require.NotNil(t, spec.Timeout)
	assert.Equal(t, 30*time.Second, *spec.Timeout)
	assert.Equal(t, map[string]any{"owner": "ml"}, spec.Metadata)

	none, err := decls[1].BaseSpec()
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDeclaration_RegisterAndExpand(t *testing.T) {
	decls, err := ParseDeclarations([]byte(qaDeclaration))
	require.NoError(t, err)

	r := NewRegistry()
	for _, d := range decls {
		require.NoError(t, d.Register(r, PlainFunc(echoPlain)))
	}

	units, err := r.ExpandAll(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "qa[a]", units[0].Name)
	assert.Equal(t, []string{"prod"}, units[0].Spec.Labels)
	assert.Equal(t, "x", units[0].Spec.Input)

	assert.Equal(t, "qa[b]", units[1].Name)
	assert.Equal(t, []string{}, units[1].Spec.Labels)
	assert.Equal(t, 30*time.Second, *units[1].Spec.Timeout)

	assert.Equal(t, "smoke", units[2].Name)
}

func TestParseDeclarations_Rejections(t *testing.T) {
	tests := map[string]string{
		"missing function": "spec: {}\n",
		"unknown top key":  "function: f\ncasez: []\n",
		"unknown spec key": "function: f\nspec:\n  lables: [x]\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDeclarations([]byte(src))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDeclaration_BadTimeout(t *testing.T) {
	decls, err := ParseDeclarations([]byte("function: f\nspec:\n  timeout: soon\n"))
	require.NoError(t, err)

	_, err = decls[0].BaseSpec()
	assert.ErrorIs(t, err, ErrSpecification)
}

func TestDeclaration_UnknownCaseKey(t *testing.T) {
	decls, err := ParseDeclarations([]byte("function: f\ncases:\n  - inptu: x\n"))
	require.NoError(t, err)

	err = decls[0].Register(NewRegistry(), PlainFunc(echoPlain))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"inptu"}, verr.Keys)
}
