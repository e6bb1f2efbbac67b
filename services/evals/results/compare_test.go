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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompareRunNames(t *testing.T) {
	tests := []struct {
		raw      string
		want     []string
		contains string
	}{
		{raw: "a,b", want: []string{"a", "b"}},
		{raw: " a , b ,, c ", want: []string{"a", "b", "c"}},
		{raw: "a,b,c,d", want: []string{"a", "b", "c", "d"}},
		{raw: "single", contains: "at least 2"},
		{raw: "", contains: "at least 2"},
		{raw: "a,a", contains: "duplicate"},
		{raw: "a,b,c,d,e", contains: "at most 4"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCompareRunNames(tt.raw)
			if tt.contains != "" {
				assert.ErrorIs(t, err, ErrInvalidCompare)
				assert.Contains(t, err.Error(), tt.contains)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildQueryParams(t *testing.T) {
	yes, no := true, false
	params := BuildQueryParams(QueryFilters{
		ActiveRunID:      "run123",
		ComparisonRunIDs: []string{"run123", "run456", "run123"},
		Search:           "slow",
		HasError:         &yes,
		HasURL:           &no,
		Annotation:       "yes",
	})

	assert.Equal(t, []QueryParam{
		{"run_id", "run123"},
		{"compare_run_id", "run123"},
		{"compare_run_id", "run456"},
		{"search", "slow"},
		{"has_error", "1"},
		{"has_url", "0"},
		{"annotation", "yes"},
	}, params)
}

func TestBuildQueryParams_Empty(t *testing.T) {
	assert.Empty(t, BuildQueryParams(QueryFilters{}))
}

func TestEncodeQuery(t *testing.T) {
	got := EncodeQuery([]QueryParam{{"run_id", "r1"}, {"search", "a b&c"}})
	assert.Equal(t, "run_id=r1&search=a+b%26c", got)
}
