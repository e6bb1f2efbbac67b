// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianEvals/services/evals/telemetry"
)

// Resolve maps a run name to the single run carrying it in session.
//
// # Description
//
// Scans every run in session for an exact run_name match.
//
//   - No match: (nil, nil), or *NotFoundError when required.
//   - One match: that run.
//   - Two or more: *AmbiguousNameError, whatever required says.
//
// Resolution never guesses between colliding runs.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - store: Any run lister; a Store satisfies it.
//   - session: Session to search.
//   - runName: Exact name to match.
//   - required: Whether a missing name is an error.
//
// # Outputs
//
//   - *RunRecord: The match, or nil.
//   - error: *NotFoundError, *AmbiguousNameError, or a store error.
//
// # Examples
//
//	rec, err := results.Resolve(ctx, store, "s1", "baseline", true)
//	if errors.Is(err, results.ErrAmbiguousName) {
//	    // ask the user for a run id
//	}
func Resolve(ctx context.Context, store RunLister, session, runName string, required bool) (rec *RunRecord, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "results.Resolve",
		trace.WithAttributes(
			telemetry.AttrSession.String(session),
			telemetry.AttrRunName.String(runName),
		))
	outcome := telemetry.OutcomeError
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.Resolutions.WithLabelValues(outcome).Inc()
	}()

	runs, err := store.ListRuns(ctx, session)
	if err != nil {
		return nil, err
	}

	var matches []*RunRecord
	for _, r := range runs {
		if r.RunName == runName {
			matches = append(matches, r)
		}
	}
	span.SetAttributes(telemetry.AttrMatches.Int(len(matches)))

	switch len(matches) {
	case 0:
		outcome = telemetry.OutcomeMissing
		if required {
			return nil, &NotFoundError{Session: session, RunName: runName}
		}
		return nil, nil
	case 1:
		outcome = telemetry.OutcomeFound
		return matches[0], nil
	default:
		outcome = telemetry.OutcomeAmbiguous
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.RunID
		}
		return nil, &AmbiguousNameError{Session: session, RunName: runName, RunIDs: ids}
	}
}

// ResolveAll resolves every name in names as required.
//
// Used to validate a comparison: every name must map to exactly one run.
// The first failure is returned and no records are.
func ResolveAll(ctx context.Context, store RunLister, session string, names []string) ([]*RunRecord, error) {
	recs := make([]*RunRecord, 0, len(names))
	for _, name := range names {
		rec, err := Resolve(ctx, store, session, name, true)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
