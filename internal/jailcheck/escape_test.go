// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jailcheck

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticRunner(checks ...Check) *Runner {
	return &Runner{checks: checks}
}

func TestRunAllRecordsPassAndFail(t *testing.T) {
	t.Parallel()

	r := syntheticRunner(
		Check{Name: "blocked", Category: "filesystem", Run: func(ctx context.Context) error { return nil }},
		Check{Name: "escaped", Category: "process", Run: func(ctx context.Context) error { return errors.New("got out") }},
	)

	results := r.RunAll(context.Background())
	require.Len(t, results, 2)
	require.True(t, results[0].Passed)
	require.False(t, results[1].Passed)
	require.Equal(t, "got out", results[1].Error)
}

func TestSummaryAndHasFailures(t *testing.T) {
	t.Parallel()

	r := syntheticRunner(
		Check{Name: "a", Run: func(ctx context.Context) error { return nil }},
		Check{Name: "b", Run: func(ctx context.Context) error { return errors.New("x") }},
		Check{Name: "c", Run: func(ctx context.Context) error { return nil }},
	)
	r.RunAll(context.Background())

	passed, failed := r.Summary()
	require.Equal(t, 2, passed)
	require.Equal(t, 1, failed)
	require.True(t, r.HasFailures())
}

func TestRunCategoryFiltersByCategory(t *testing.T) {
	t.Parallel()

	r := syntheticRunner(
		Check{Name: "fs", Category: "filesystem", Run: func(ctx context.Context) error { return nil }},
		Check{Name: "proc", Category: "process", Run: func(ctx context.Context) error { return nil }},
	)

	results := r.RunCategory(context.Background(), "process")
	require.Len(t, results, 1)
	require.Equal(t, "proc", results[0].Check.Name)
}

func TestPrintResultsShowsEscapeVectors(t *testing.T) {
	t.Parallel()

	r := syntheticRunner(
		Check{Name: "escaped", Description: "walks out", Run: func(ctx context.Context) error { return errors.New("reached host fs") }},
	)
	r.RunAll(context.Background())

	var buf bytes.Buffer
	r.PrintResults(&buf)
	require.Contains(t, buf.String(), "[FAIL] escaped")
	require.Contains(t, buf.String(), "reached host fs")
	require.Contains(t, buf.String(), "1 escape vectors detected")
}

func TestRealCheckTableHasNoDuplicateNames(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, c := range Checks {
		require.False(t, seen[c.Name], "duplicate check name %s", c.Name)
		seen[c.Name] = true
		require.NotEmpty(t, c.Category)
		require.NotEmpty(t, c.Severity)
		require.NotNil(t, c.Run)
	}
}
