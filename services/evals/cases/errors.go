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
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrValidation is returned when a case declaration is malformed.
	ErrValidation = errors.New("invalid case declaration")

	// ErrSpecification is returned when expansion is used incorrectly,
	// for example on a function that has no case table.
	ErrSpecification = errors.New("invalid evaluation function specification")

	// ErrNotFound is returned when a function is not found in the registry.
	ErrNotFound = errors.New("evaluation function not found")

	// ErrAlreadyRegistered is returned when attempting to register a duplicate.
	ErrAlreadyRegistered = errors.New("evaluation function already registered")

	// ErrNilImpl is returned when attempting to register a nil implementation.
	ErrNilImpl = errors.New("implementation must not be nil")
)

// ValidationError describes a malformed case declaration.
//
// Description:
//
//	Carries the position of the offending case (or -1 when the declaration
//	as a whole is malformed) and, for unknown keys, the sorted key list.
//	Unwraps to ErrValidation.
//
// Example:
//
//	_, err := cases.Normalize(raw)
//	var verr *cases.ValidationError
//	if errors.As(err, &verr) {
//	    fmt.Println(verr.Index, verr.Keys)
//	}
type ValidationError struct {
	// Index is the zero-based case position, or -1 for the whole declaration.
	Index int

	// Keys lists offending keys, sorted. Empty unless unknown keys were found.
	Keys []string

	// Reason is the human-readable failure description.
	Reason string
}

// Error returns a formatted error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

// Unwrap returns ErrValidation so errors.Is works through the chain.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newUnknownKeysError(index int, keys []string) *ValidationError {
	return &ValidationError{
		Index:  index,
		Keys:   keys,
		Reason: fmt.Sprintf("unknown case keys: %s", strings.Join(keys, ", ")),
	}
}

func newFieldError(index int, key, want string) *ValidationError {
	return &ValidationError{
		Index:  index,
		Keys:   []string{key},
		Reason: fmt.Sprintf("case %d: %s must be %s", index, key, want),
	}
}

// SpecificationError describes a caller usage error during expansion.
//
// Unwraps to ErrSpecification.
type SpecificationError struct {
	// Function is the name of the evaluation function involved.
	Function string

	// Reason is the human-readable failure description.
	Reason string
}

// Error returns a formatted error message.
func (e *SpecificationError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s", ErrSpecification, e.Reason)
	}
	return fmt.Sprintf("%s: function %s %s", ErrSpecification, e.Function, e.Reason)
}

// Unwrap returns ErrSpecification.
func (e *SpecificationError) Unwrap() error {
	return ErrSpecification
}
