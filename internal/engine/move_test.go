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

func oracleAllowing(t *testing.T, paths ...string) *policy.Oracle {
	t.Helper()
	var conf strings.Builder
	for _, p := range paths {
		conf.WriteString("enablejail " + p + "\n")
	}
	o, err := policy.Parse(strings.NewReader(conf.String()), "test.conf")
	require.NoError(t, err)
	return o
}

func TestMoveRenamesSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(src, 0755))

	err := Move(oracleAllowing(t, dst), src, dst, false, auditlog.New(nil, false))
	require.NoError(t, err)

	_, err = os.Stat(dst)
	require.NoError(t, err)
	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
}

func TestMoveIntoExistingDirAppendsBasename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dstDir := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(src, 0755))
	require.NoError(t, os.Mkdir(dstDir, 0755))

	err := Move(oracleAllowing(t, filepath.Join(dstDir, "a")), src, dstDir, false, auditlog.New(nil, false))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dstDir, "a"))
	require.NoError(t, err)
}

func TestMoveDeniedByPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	require.NoError(t, os.Mkdir(src, 0755))

	o, err := policy.Parse(strings.NewReader("disablejail\n"), "test.conf")
	require.NoError(t, err)

	err = Move(o, src, filepath.Join(dir, "b"), false, auditlog.New(nil, false))
	require.Error(t, err)
	_, statErr := os.Stat(src)
	require.NoError(t, statErr, "source must be untouched when the destination is denied")
}

func TestMoveDryRunDoesNotTouchFilesystem(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(src, 0755))

	err := Move(oracleAllowing(t, dst), src, dst, true, auditlog.New(nil, false))
	require.NoError(t, err)

	_, err = os.Stat(src)
	require.NoError(t, err)
	_, err = os.Stat(dst)
	require.True(t, os.IsNotExist(err))
}
