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
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultSession is used when neither the options nor the summary name a session.
const DefaultSession = "default"

// recordExt is the extension of run record files.
const recordExt = ".json"

const (
	sessionRules = "required,max=128,pathsafe"
	runNameRules = "required,max=128,pathsafe"
	runIDRules   = "required,max=128,pathsafe,excludes=_"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("pathsafe", func(fl validator.FieldLevel) bool {
		return isPathSafe(fl.Field().String())
	})
	return v
}

// isPathSafe rejects values that would escape or alias a directory entry.
// A leading dot is also rejected: listings skip hidden entries, so such a
// session or record could be written but never read back.
func isPathSafe(s string) bool {
	if strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// ValidateSessionName reports whether name can be used as a session.
func ValidateSessionName(name string) error {
	return checkName("session name", name, sessionRules)
}

// ValidateRunName reports whether name can be used as a run name.
func ValidateRunName(name string) error {
	return checkName("run name", name, runNameRules)
}

// ValidateRunID reports whether id can be used as a run ID.
//
// Run IDs may not contain "_" because record file names split on the last one.
func ValidateRunID(id string) error {
	return checkName("run id", id, runIDRules)
}

func checkName(what, value, rules string) error {
	if err := validate.Var(value, rules); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, what, value)
	}
	return nil
}

// NewRunID returns a time-ordered UUIDv7 string.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// DefaultRunName returns the name given to runs saved without one.
func DefaultRunName(now time.Time) string {
	return "run-" + now.UTC().Format("20060102-150405")
}

// recordFileName returns "<run_name>_<run_id>.json".
func recordFileName(runName, runID string) string {
	return runName + "_" + runID + recordExt
}

// parseRecordFileName splits a record file name at its last underscore.
func parseRecordFileName(name string) (runName, runID string, ok bool) {
	base, found := strings.CutSuffix(name, recordExt)
	if !found || strings.HasPrefix(name, ".") {
		return "", "", false
	}
	i := strings.LastIndexByte(base, '_')
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}
