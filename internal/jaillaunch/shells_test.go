// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jaillaunch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowedShellHardcoded(t *testing.T) {
	t.Parallel()

	require.True(t, AllowedShell(t.TempDir(), "/bin/bash"))
	require.True(t, AllowedShell(t.TempDir(), "/bin/sh"))
}

func TestAllowedShellFromEtcShells(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "shells"), []byte(
		"# /etc/shells: valid login shells\n/bin/bash\n/usr/bin/zsh\n\n"), 0644))

	require.True(t, AllowedShell(root, "/usr/bin/zsh"))
	require.False(t, AllowedShell(root, "/usr/bin/fish"))
}

func TestAllowedShellMissingEtcShells(t *testing.T) {
	t.Parallel()

	require.False(t, AllowedShell(t.TempDir(), "/usr/bin/zsh"))
}
