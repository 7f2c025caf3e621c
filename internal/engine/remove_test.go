// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/policy"
)

func TestRemoveMissingJailDirWithoutForceFails(t *testing.T) {
	t.Parallel()

	jailDir := filepath.Join(t.TempDir(), "nonexistent")
	o, err := policy.Parse(strings.NewReader("enablejail "+jailDir+"\n"), "test.conf")
	require.NoError(t, err)

	err = Remove(o, jailDir, false, false, auditlog.New(nil, false))
	require.Error(t, err)
}

func TestRemoveMissingJailDirWithForceSucceeds(t *testing.T) {
	t.Parallel()

	jailDir := filepath.Join(t.TempDir(), "nonexistent")
	o, err := policy.Parse(strings.NewReader("enablejail "+jailDir+"\n"), "test.conf")
	require.NoError(t, err)

	err = Remove(o, jailDir, true, false, auditlog.New(nil, false))
	require.NoError(t, err)
}

func TestRemoveDeletesTreeEvenWhenPolicyNoLongerAllowsIt(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(jailDir, "file"), []byte("x"), 0644))

	o, err := policy.Parse(strings.NewReader("disablejail\n"), "test.conf")
	require.NoError(t, err)

	err = Remove(o, jailDir, false, false, auditlog.New(nil, false))
	require.NoError(t, err)

	_, statErr := os.Stat(jailDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestRemoveDryRunLeavesTreeInPlace(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()
	o, err := policy.Parse(strings.NewReader("enablejail "+jailDir+"\n"), "test.conf")
	require.NoError(t, err)

	err = Remove(o, jailDir, false, true, auditlog.New(nil, false))
	require.NoError(t, err)

	_, statErr := os.Stat(jailDir)
	require.NoError(t, statErr)
}
