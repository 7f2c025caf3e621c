// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateJailDirMissing(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateJailDir(filepath.Join(t.TempDir(), "nonexistent"))
	require.True(t, v.HasErrors())
}

func TestValidateJailDirEmptyPath(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateJailDir("")
	require.True(t, v.HasErrors())
}

func TestValidateJailDirRejectsRegularFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	v := New()
	v.ValidateJailDir(file)
	require.True(t, v.HasErrors())
}

func TestValidateJailDirAccepts(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateJailDir(t.TempDir())
	require.False(t, v.HasErrors())
}

func TestValidateOwnerHomeMustExistInsideJail(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()

	v := New()
	v.ValidateOwnerHome(jailDir, "/home/student")
	require.True(t, v.HasErrors())

	require.NoError(t, os.MkdirAll(filepath.Join(jailDir, "home", "student"), 0755))
	v2 := New()
	v2.ValidateOwnerHome(jailDir, "/home/student")
	require.False(t, v2.HasErrors())
}

func TestValidateOwnerShellWarnsWhenEmpty(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateOwnerShell(t.TempDir(), "")
	require.False(t, v.HasErrors())
	require.Len(t, v.Results(), 1)
	require.True(t, v.Results()[0].Warning)
}

func TestValidateOwnerShellRejectsNonExecutable(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jailDir, "bin"), 0755))
	shellPath := filepath.Join(jailDir, "bin", "sh")
	require.NoError(t, os.WriteFile(shellPath, []byte("#!/bin/sh\n"), 0644))

	v := New()
	v.ValidateOwnerShell(jailDir, "/bin/sh")
	require.True(t, v.HasErrors())
}

func TestValidateOwnerShellAcceptsExecutable(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jailDir, "bin"), 0755))
	shellPath := filepath.Join(jailDir, "bin", "sh")
	require.NoError(t, os.WriteFile(shellPath, []byte("#!/bin/sh\n"), 0755))

	v := New()
	v.ValidateOwnerShell(jailDir, "/bin/sh")
	require.False(t, v.HasErrors())
}

func TestValidateEventSourceSocketAbstractAlwaysPasses(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateEventSourceSocket("@pa-jail-events")
	require.False(t, v.HasErrors())
}

func TestValidateEventSourceSocketEmptyIsSkipped(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateEventSourceSocket("")
	require.Empty(t, v.Results())
}

func TestValidateEventSourceSocketMissingParentDirFails(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateEventSourceSocket(filepath.Join(t.TempDir(), "nonexistent", "events.sock"))
	require.True(t, v.HasErrors())
}

func TestValidateEventSourceSocketWarnsOnStalePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "events.sock")
	require.NoError(t, os.WriteFile(sockPath, []byte(""), 0644))

	v := New()
	v.ValidateEventSourceSocket(sockPath)
	require.False(t, v.HasErrors())
	require.True(t, v.Results()[0].Warning)
}

func TestPrintResultsReportsFailureCount(t *testing.T) {
	t.Parallel()

	v := New()
	v.ValidateJailDir("")
	v.ValidateOwnerShell(t.TempDir(), "")

	var buf strings.Builder
	v.PrintResults(&buf)
	require.Contains(t, buf.String(), "validation failed with 1 error(s)")
}
