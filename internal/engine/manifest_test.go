// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadManifestsConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "base.manifest")
	require.NoError(t, os.WriteFile(path, []byte("/bin/echo\n"), 0644))

	entries, err := loadManifests([]ManifestSource{
		{Kind: ManifestFromFile, Value: path},
		{Kind: ManifestFromText, Value: "/bin/cat\n"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/bin/echo", entries[0].Src)
	require.Equal(t, "/bin/cat", entries[1].Src)
}

func TestLoadManifestsReadsStdin(t *testing.T) {
	t.Parallel()

	entries, err := loadManifests([]ManifestSource{
		{Kind: ManifestFromFile, Value: "-"},
	}, strings.NewReader("/bin/sh\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/bin/sh", entries[0].Src)
}

func TestLoadManifestsStdinUnavailable(t *testing.T) {
	t.Parallel()

	_, err := loadManifests([]ManifestSource{
		{Kind: ManifestFromFile, Value: "-"},
	}, nil)
	require.Error(t, err)
}

func TestLoadManifestsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadManifests([]ManifestSource{
		{Kind: ManifestFromFile, Value: filepath.Join(t.TempDir(), "nope")},
	}, nil)
	require.Error(t, err)
}

func TestLoadManifestsPropagatesParseError(t *testing.T) {
	t.Parallel()

	_, err := loadManifests([]ManifestSource{
		{Kind: ManifestFromText, Value: "/bin/echo [unterminated\n"},
	}, nil)
	require.Error(t, err)
}
