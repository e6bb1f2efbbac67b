// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrinter_BufferIsNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	assert.False(t, p.Styled())
	assert.False(t, IsTerminal(&buf))
	assert.Same(t, &buf, p.Writer())
}

func TestPlainPrinter_StatusLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("ignored in plain mode")
	p.Success("saved")
	p.Warning("careful")
	p.Error("broken")
	p.Line("raw")

	assert.Equal(t, "OK: saved\nWARN: careful\nERROR: broken\nraw\n", buf.String())
}

func TestPlainPrinter_KeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).KeyValues([][2]string{
		{"run_id", "r1"},
		{"session", "s1"},
	})
	assert.Equal(t, "run_id:  r1\nsession: s1\n", buf.String())
}

func TestPlainPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).Table(
		[]string{"RUN ID", "NAME"},
		[][]string{{"r1", "baseline"}, {"run-0002", "candidate"}},
	)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN ID"))
	assert.Contains(t, lines[2], "candidate")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestStyledPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}
	p.Table([]string{"A"}, [][]string{{"x"}})
	assert.Contains(t, buf.String(), "x")
	assert.Contains(t, buf.String(), "╭")
}
