// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry holds the tracing and metric instruments shared by the
// evals packages.
//
// Spans go through the global OpenTelemetry tracer provider, so they are
// no-ops until the host process installs one. Metrics are registered on a
// private Prometheus registry that the host may expose or gather directly.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope for all evals spans.
const InstrumentationName = "github.com/AleutianAI/AleutianEvals/services/evals"

// Span attribute keys.
const (
	AttrFunction = attribute.Key("evals.function")
	AttrUnits    = attribute.Key("evals.units")
	AttrSession  = attribute.Key("evals.session")
	AttrRunName  = attribute.Key("evals.run_name")
	AttrRunID    = attribute.Key("evals.run_id")
	AttrBackend  = attribute.Key("evals.backend")
	AttrMatches  = attribute.Key("evals.matches")
)

// Resolution outcomes used as the "outcome" label.
const (
	OutcomeFound     = "found"
	OutcomeMissing   = "missing"
	OutcomeAmbiguous = "ambiguous"
	OutcomeError     = "error"
)

// Tracer returns the evals tracer from the global provider.
//
// Looked up per call so a provider installed after package init is honoured.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// RecordError marks span as failed. A nil err is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

// Registry is the Prometheus registry all evals metrics are registered on.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CasesExpanded counts evaluation units produced by expansion.
	CasesExpanded = factory.NewCounter(prometheus.CounterOpts{
		Name: "evals_cases_expanded_total",
		Help: "Total evaluation units produced by case expansion",
	})

	// ExpansionFailures counts rejected expansions by error class.
	ExpansionFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evals_expansion_failures_total",
		Help: "Total case expansions rejected, by reason",
	}, []string{"reason"})

	// RunsSaved counts persisted runs by storage backend.
	RunsSaved = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evals_runs_saved_total",
		Help: "Total runs persisted, by backend",
	}, []string{"backend"})

	// Resolutions counts run-name lookups by outcome.
	Resolutions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "evals_resolutions_total",
		Help: "Total run-name resolutions, by outcome",
	}, []string{"outcome"})

	// StoreOpSeconds observes storage operation latency.
	StoreOpSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evals_store_op_seconds",
		Help:    "Run store operation latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"backend", "op"})
)
