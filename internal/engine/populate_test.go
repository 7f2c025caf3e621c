// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/jaillaunch"
	"github.com/pa-jail/pajail/internal/mountplan"
)

func TestPopulateMaterializesManifestEntries(t *testing.T) {
	t.Parallel()

	hostFile := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(hostFile, []byte("#!/bin/sh\n"), 0755))

	jailDir := t.TempDir()
	opts := PopulateOptions{
		Manifests: []ManifestSource{
			{Kind: ManifestFromText, Value: "usr/bin/tool <- " + hostFile + "\n"},
		},
	}

	requests, err := Populate(jailDir, opts, jaillaunch.Identity{}, mountplan.NewTableFromSnapshot(nil), auditlog.New(nil, false))
	require.NoError(t, err)
	require.Empty(t, requests)

	got, err := os.ReadFile(filepath.Join(jailDir, "usr", "bin", "tool"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\n", string(got))
}

func TestPopulateDryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	hostFile := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(hostFile, []byte("x"), 0755))

	jailDir := t.TempDir()
	opts := PopulateOptions{
		DryRun: true,
		Manifests: []ManifestSource{
			{Kind: ManifestFromText, Value: "usr/bin/tool <- " + hostFile + "\n"},
		},
	}

	_, err := Populate(jailDir, opts, jaillaunch.Identity{}, mountplan.NewTableFromSnapshot(nil), auditlog.New(nil, false))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(jailDir, "usr", "bin", "tool"))
	require.True(t, os.IsNotExist(statErr))
}

func TestPopulateChownHomeWalksTree(t *testing.T) {
	t.Parallel()

	jailDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jailDir, "home", "student", "work"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(jailDir, "home", "student", "work", "f"), []byte("x"), 0644))

	owner := jaillaunch.Identity{Uid: os.Getuid(), Gid: os.Getgid(), Home: "/home/student"}
	opts := PopulateOptions{ChownHome: true}

	_, err := Populate(jailDir, opts, owner, mountplan.NewTableFromSnapshot(nil), auditlog.New(nil, false))
	require.NoError(t, err)
}
