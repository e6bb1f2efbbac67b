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
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Summary is the persisted body of one run.
//
// # Description
//
// Results holds the per-unit payloads produced by the runner; they are
// opaque here. Identity fields (SessionName, RunName, RunID, CreatedAt)
// are stamped by the store on save. Top-level keys this type does not
// know about are kept in Extra and written back unchanged.
type Summary struct {
	Results          []json.RawMessage `json:"results"`
	TotalEvaluations int               `json:"total_evaluations" validate:"gte=0"`
	Passed           int               `json:"passed,omitempty" validate:"gte=0"`
	Failed           int               `json:"failed,omitempty" validate:"gte=0"`
	Errors           int               `json:"errors,omitempty" validate:"gte=0"`

	Path         string   `json:"path,omitempty"`
	Dataset      string   `json:"dataset,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	FunctionName string   `json:"function_name,omitempty"`

	SessionName string    `json:"session_name"`
	RunName     string    `json:"run_name"`
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`

	// Extra holds unrecognized top-level keys.
	Extra map[string]json.RawMessage `json:"-"`
}

// summaryFields is the alias used to get default encoding without recursion.
type summaryFields Summary

var knownSummaryKeys = map[string]struct{}{
	"results": {}, "total_evaluations": {}, "passed": {}, "failed": {}, "errors": {},
	"path": {}, "dataset": {}, "labels": {}, "function_name": {},
	"session_name": {}, "run_name": {}, "run_id": {}, "created_at": {},
}

// MarshalJSON encodes the known fields and merges Extra underneath them.
func (s Summary) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(summaryFields(s))
	if err != nil || len(s.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(s.Extra)+len(knownSummaryKeys))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, known := knownSummaryKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var fields summaryFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range knownSummaryKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		fields.Extra = all
	}

	*s = Summary(fields)
	return nil
}

// Validate checks counters with the shared validator.
func (s Summary) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	return nil
}

// RunRecord is one persisted run.
type RunRecord struct {
	RunID       string
	SessionName string
	RunName     string
	CreatedAt   time.Time

	// Path is the record file for the file backend, empty otherwise.
	Path string

	Summary Summary
}

// SaveOptions addresses a run being saved.
type SaveOptions struct {
	// RunID is generated when empty.
	RunID string

	// SessionName falls back to the summary's session_name, then DefaultSession.
	SessionName string

	// RunName falls back to the summary's run_name, then a timestamped name.
	RunName string

	// Overwrite replaces an existing run with the same RunID and removes
	// other runs in the session that share RunName. When false nothing is
	// removed: same-named runs coexist and a RunID collision is ErrRunExists.
	Overwrite bool
}

func newRecord(s Summary, path string) *RunRecord {
	return &RunRecord{
		RunID:       s.RunID,
		SessionName: s.SessionName,
		RunName:     s.RunName,
		CreatedAt:   s.CreatedAt,
		Path:        path,
		Summary:     s,
	}
}

func decodeSummary(data []byte) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, err
	}
	if s.RunID == "" || s.SessionName == "" {
		return Summary{}, errors.New("record is missing run_id or session_name")
	}
	return s, nil
}
