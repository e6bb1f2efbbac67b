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

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

func TestExpand_EndToEnd(t *testing.T) {
	base := &Spec{
		Labels:       []string{"prod"},
		Timeout:      DurationPtr(30 * time.Second),
		ContextParam: BoolPtr(true),
	}
	raw := []map[string]any{
		{"id": "a", "input": "x"},
		{"id": "b", "labels": []string{}, "input": "y"},
	}

	units, err := ExpandFunc("qa", ContextFunc(echoContext), base, raw)
	require.NoError(t, err)
	require.Len(t, units, 2)

	a, b := units[0], units[1]
	assert.Equal(t, "qa[a]", a.Name)
	assert.Equal(t, []string{"prod"}, a.Spec.Labels)
	require.NotNil(t, a.Spec.Timeout)
	assert.Equal(t, 30*time.Second, *a.Spec.Timeout)
	assert.Equal(t, "x", a.Spec.Input)
	assert.Nil(t, a.Spec.Dataset)

	assert.Equal(t, "qa[b]", b.Name)
	assert.Equal(t, []string{}, b.Spec.Labels)
	require.NotNil(t, b.Spec.Timeout)
	assert.Equal(t, 30*time.Second, *b.Spec.Timeout)
	assert.Equal(t, "y", b.Spec.Input)

	got, err := b.Callable.Call(context.Background(), b.NewContext())
	require.NoError(t, err)
	assert.Equal(t, "y", got, "each callable sees its own case input")
}

func TestExpand_LengthAndOrder(t *testing.T) {
	raw := make([]any, 0, 20)
	for i := 0; i < 20; i++ {
		raw = append(raw, map[string]any{"input": i})
	}

	units, err := ExpandFunc("f", echoPlain, nil, raw)
	require.NoError(t, err)
	require.Len(t, units, len(raw))
	for i, u := range units {
		assert.Equal(t, i, u.Index)
		assert.Equal(t, UnitName("f", nil, i), u.Name)
		assert.Equal(t, i, u.Spec.Input)
		assert.Equal(t, "f", u.Function)
	}
}

func TestExpand_NoOpCaseMatchesBase(t *testing.T) {
	base := baseSpec()
	base.ContextParam = BoolPtr(false)
	units, err := ExpandFunc("f", echoPlain, &base, []any{map[string]any{}})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, base, units[0].Spec)
}

func TestExpand_UnsetContextParamIsDetected(t *testing.T) {
	base := &Spec{Labels: []string{"prod"}}
	raw := []any{map[string]any{"input": "x"}}

	units, err := ExpandFunc("f", ContextFunc(echoContext), base, raw)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.True(t, units[0].Callable.Convention().ContextAware)
	require.NotNil(t, units[0].Spec.ContextParam)
	assert.True(t, *units[0].Spec.ContextParam)
	assert.Nil(t, base.ContextParam, "base spec is not modified")

	units, err = ExpandFunc("f", PlainFunc(echoPlain), base, raw)
	require.NoError(t, err)
	require.NotNil(t, units[0].Spec.ContextParam)
	assert.False(t, *units[0].Spec.ContextParam)
}

func TestExpand_UnknownKeyYieldsNoUnits(t *testing.T) {
	raw := []any{
		map[string]any{"id": "fine", "input": 1},
		map[string]any{"foo": 1},
	}
	units, err := ExpandFunc("f", echoPlain, nil, raw)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, units)
}

func TestExpand_WithoutCaseTable(t *testing.T) {
	units, err := Expand(Function{Name: "f", Impl: echoPlain})
	assert.Empty(t, units)

	var serr *SpecificationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "f", serr.Function)

	_, err = ExpandFunc("f", echoPlain, nil, nil)
	assert.ErrorIs(t, err, ErrSpecification)
}

func TestExpand_SpecMismatchIsAtomic(t *testing.T) {
	table, err := Normalize([]any{map[string]any{"input": 1}})
	require.NoError(t, err)

	units, err := Expand(Function{
		Name:  "f",
		Impl:  echoPlain,
		Spec:  &Spec{ContextParam: BoolPtr(true)},
		Cases: table,
	})
	assert.ErrorIs(t, err, ErrSpecification)
	assert.Nil(t, units)
}

func TestUnitName(t *testing.T) {
	assert.Equal(t, "f[easy]", UnitName("f", StringPtr("easy"), 3))
	assert.Equal(t, "f[3]", UnitName("f", nil, 3))
	assert.Equal(t, "f[3]", UnitName("f", StringPtr(""), 3))
}

func TestExpand_DuplicateIDsAllowed(t *testing.T) {
	units, err := ExpandFunc("f", echoPlain, nil, []any{
		map[string]any{"id": "dup"},
		map[string]any{"id": "dup"},
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, units[0].Name, units[1].Name)
	assert.NotEqual(t, units[0].Index, units[1].Index)
}

func TestUnit_NewContext(t *testing.T) {
	base := baseSpec()
	units, err := ExpandFunc("f", echoContext, nil, []any{map[string]any{"input": "q"}})
	require.NoError(t, err)

	u := units[0]
	u.Spec = Merge(base, Overrides{Input: Replace[any]("q")})
	ec := u.NewContext()
	assert.Equal(t, "f[0]", ec.Name)
	assert.Equal(t, "q", ec.Input)
	assert.Equal(t, "qa", ec.Dataset)
	assert.Equal(t, "correct", ec.DefaultScoreKey)

	ec.Labels[0] = "mutated"
	assert.Equal(t, "a", u.Spec.Labels[0])
}

func TestExpand_Metrics(t *testing.T) {
	before := testutil.ToFloat64(telemetry.CasesExpanded)
	failedBefore := testutil.ToFloat64(telemetry.ExpansionFailures.WithLabelValues("validation"))

	_, err := ExpandFunc("f", echoPlain, nil, []any{map[string]any{}, map[string]any{}})
	require.NoError(t, err)
	_, err = ExpandFunc("f", echoPlain, nil, []any{map[string]any{"nope": 1}})
	require.Error(t, err)

	assert.Equal(t, before+2, testutil.ToFloat64(telemetry.CasesExpanded))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(telemetry.ExpansionFailures.WithLabelValues("validation")))
}

func TestExpandContext_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	table, err := Normalize([]any{map[string]any{"input": 1}})
	require.NoError(t, err)

	_, err = ExpandContext(context.Background(), Function{Name: "f", Impl: echoPlain, Cases: table})
	require.NoError(t, err)
	_, err = ExpandContext(context.Background(), Function{Name: "g", Impl: echoPlain})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "cases.Expand", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), telemetry.AttrUnits.Int(1))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
