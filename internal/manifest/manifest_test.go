// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleCopy(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("/bin/echo\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, KindCopy, entries[0].Kind)
	require.Equal(t, "/bin/echo", entries[0].Src)
	require.Equal(t, "/bin/echo", entries[0].Dst)
}

func TestParseDirContext(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader(`
usr/lib:
libc.so.6
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/usr/lib/libc.so.6", entries[0].Src)
	require.Equal(t, "/usr/lib/libc.so.6", entries[0].Dst)
}

func TestParseSourceOverride(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("bin/sh <- /bin/bash\n"))
	require.NoError(t, err)
	require.Equal(t, "/bin/bash", entries[0].Src)
	require.Equal(t, "/bin/sh", entries[0].Dst)
}

func TestParseCpFlag(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("etc/resolv.conf [cp]\n"))
	require.NoError(t, err)
	require.Equal(t, KindCp, entries[0].Kind)
}

func TestParseBindRO(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("srv/data [bind-ro v3 /some/files.manifest]\n"))
	require.NoError(t, err)
	require.Equal(t, KindBindRO, entries[0].Kind)
	require.Equal(t, "v3", entries[0].BindTag)
	require.Equal(t, "/some/files.manifest", entries[0].BindFiles)
}

func TestParseMount(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("tmp [mount tmpfs size=64m]\n"))
	require.NoError(t, err)
	require.Equal(t, KindMount, entries[0].Kind)
	require.Equal(t, "tmpfs", entries[0].MountFS)
	require.Equal(t, "size=64m", entries[0].MountArgs)
}

func TestParseCommentsAndBlankLinesIgnored(t *testing.T) {
	t.Parallel()

	entries, err := Parse(strings.NewReader("# a comment\n\n/bin/echo\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestParseLineTooLong(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader(strings.Repeat("a", MaxLineLength+10) + "\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "too long")
}

func TestParseUnknownFlag(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("/bin/echo [frobnicate]\n"))
	require.Error(t, err)
}
