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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a run or run name does not exist.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguousName is returned when a run name matches more than one run.
	ErrAmbiguousName = errors.New("ambiguous run name")

	// ErrRunExists is returned when saving without overwrite onto an existing run_id.
	ErrRunExists = errors.New("run already exists")

	// ErrInvalidName is returned for session names, run names, or run IDs
	// that cannot be stored.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidSummary is returned when a summary fails validation.
	ErrInvalidSummary = errors.New("invalid run summary")

	// ErrInvalidCompare is returned for a malformed comparison request.
	ErrInvalidCompare = errors.New("invalid run comparison")
)

// NotFoundError reports that a required run name has no match in a session.
//
// # Description
//
// Returned by Resolve when required is true and no run in the session
// carries the requested name. Unwraps to ErrNotFound.
//
// # Example
//
//	_, err := results.Resolve(ctx, store, "s1", "baseline", true)
//	var nf *results.NotFoundError
//	if errors.As(err, &nf) {
//	    fmt.Println(nf.Session, nf.RunName)
//	}
type NotFoundError struct {
	// Session is the session that was searched.
	Session string

	// RunName is the name that was not found.
	RunName string
}

// Error returns a formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run name '%s' not found in session '%s'", e.RunName, e.Session)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AmbiguousNameError reports that a run name matches two or more runs.
//
// # Description
//
// Returned by Resolve regardless of required. RunIDs lists every
// matching run, oldest first, so the caller can ask for a run_id instead.
// Unwraps to ErrAmbiguousName.
type AmbiguousNameError struct {
	// Session is the session that was searched.
	Session string

	// RunName is the colliding name.
	RunName string

	// RunIDs are the matching runs, oldest first.
	RunIDs []string
}

// Error returns a formatted error message.
func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("run name '%s' is ambiguous in session '%s': %d runs match (%s); use a run id",
		e.RunName, e.Session, len(e.RunIDs), strings.Join(e.RunIDs, ", "))
}

// Unwrap returns ErrAmbiguousName.
func (e *AmbiguousNameError) Unwrap() error {
	return ErrAmbiguousName
}
