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
	"net/url"
	"strings"
)

const (
	// MinCompareRuns is the fewest runs a comparison accepts.
	MinCompareRuns = 2

	// MaxCompareRuns is the most runs a comparison accepts.
	MaxCompareRuns = 4
)

// ParseCompareRunNames splits a comma-separated list of run names.
//
// Blank entries are dropped. The result must hold between MinCompareRuns
// and MaxCompareRuns distinct names.
func ParseCompareRunNames(raw string) ([]string, error) {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}

	if len(names) < MinCompareRuns {
		return nil, fmt.Errorf("%w: provide at least %d run names", ErrInvalidCompare, MinCompareRuns)
	}
	if len(names) > MaxCompareRuns {
		return nil, fmt.Errorf("%w: provide at most %d run names", ErrInvalidCompare, MaxCompareRuns)
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate run name %q", ErrInvalidCompare, name)
		}
		seen[name] = struct{}{}
	}
	return names, nil
}

// QueryParam is one key/value pair of a results-browser URL.
type QueryParam struct {
	Key   string
	Value string
}

// QueryFilters selects what the results browser shows.
type QueryFilters struct {
	// ActiveRunID opens a specific run. Empty for none.
	ActiveRunID string

	// ComparisonRunIDs are the runs shown side by side.
	ComparisonRunIDs []string

	Search     string
	Annotation string

	// Tri-state filters; nil leaves the filter off.
	HasError    *bool
	HasURL      *bool
	HasMessages *bool
}

// BuildQueryParams renders filters as ordered query parameters.
//
// Comparison IDs are deduplicated in order. Boolean filters render as
// "1" or "0".
func BuildQueryParams(f QueryFilters) []QueryParam {
	var params []QueryParam
	if f.ActiveRunID != "" {
		params = append(params, QueryParam{"run_id", f.ActiveRunID})
	}

	seen := make(map[string]struct{}, len(f.ComparisonRunIDs))
	for _, id := range f.ComparisonRunIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		params = append(params, QueryParam{"compare_run_id", id})
	}

	if f.Search != "" {
		params = append(params, QueryParam{"search", f.Search})
	}
	params = appendFlag(params, "has_error", f.HasError)
	params = appendFlag(params, "has_url", f.HasURL)
	params = appendFlag(params, "has_messages", f.HasMessages)
	if f.Annotation != "" {
		params = append(params, QueryParam{"annotation", f.Annotation})
	}
	return params
}

func appendFlag(params []QueryParam, key string, v *bool) []QueryParam {
	if v == nil {
		return params
	}
	value := "0"
	if *v {
		value = "1"
	}
	return append(params, QueryParam{key, value})
}

// EncodeQuery joins params into a query string, preserving order.
func EncodeQuery(params []QueryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
