// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package materializer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyRegularFile(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "bin"), 0755))
	src := filepath.Join(hostRoot, "bin", "true")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0755))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(src, "/bin/true", true, nil))

	got, err := os.ReadFile(filepath.Join(jailRoot, "bin", "true"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\n", string(got))
}

func TestCopyHardLinksDuplicateContent(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	src := filepath.Join(hostRoot, "libc.so.6")
	require.NoError(t, os.WriteFile(src, []byte("elf"), 0644))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(src, "/usr/lib/libc.so.6", true, nil))
	require.NoError(t, m.Copy(src, "/usr/lib32/libc.so.6", true, nil))

	a, err := os.Stat(filepath.Join(jailRoot, "usr", "lib", "libc.so.6"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(jailRoot, "usr", "lib32", "libc.so.6"))
	require.NoError(t, err)
	require.True(t, os.SameFile(a, b), "second copy should be a hard link to the first")
}

func TestCopyCpFlagNeverLinks(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	src := filepath.Join(hostRoot, "resolv.conf")
	require.NoError(t, os.WriteFile(src, []byte("nameserver 127.0.0.1\n"), 0644))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(src, "/etc/resolv.conf", true, nil))
	require.NoError(t, m.Copy(src, "/etc/resolv.conf.bak", false, nil))

	a, err := os.Stat(filepath.Join(jailRoot, "etc", "resolv.conf"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(jailRoot, "etc", "resolv.conf.bak"))
	require.NoError(t, err)
	require.False(t, os.SameFile(a, b), "reuseLink=false must copy, not link")
}

func TestCopyIsIdempotent(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	src := filepath.Join(hostRoot, "passwd")
	require.NoError(t, os.WriteFile(src, []byte("root:x:0:0::/root:/bin/sh\n"), 0644))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(src, "/etc/passwd", true, nil))

	m2 := New(jailRoot, "", nil, false)
	require.NoError(t, m2.Copy(src, "/etc/passwd", true, nil))

	got, err := os.ReadFile(filepath.Join(jailRoot, "etc", "passwd"))
	require.NoError(t, err)
	require.Equal(t, "root:x:0:0::/root:/bin/sh\n", string(got))
}

func TestCopyCreatesParentDirectories(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "usr", "share", "zoneinfo"), 0755))
	src := filepath.Join(hostRoot, "usr", "share", "zoneinfo", "UTC")
	require.NoError(t, os.WriteFile(src, []byte("tz"), 0644))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(src, "/usr/share/zoneinfo/UTC", true, nil))

	fi, err := os.Stat(filepath.Join(jailRoot, "usr", "share"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestCopySymlinkFollowsImplicitTarget(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "lib"), 0755))
	real := filepath.Join(hostRoot, "lib", "libfoo.so.1.0")
	require.NoError(t, os.WriteFile(real, []byte("elf"), 0644))
	link := filepath.Join(hostRoot, "lib", "libfoo.so")
	require.NoError(t, os.Symlink("libfoo.so.1.0", link))

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(link, "/lib/libfoo.so", true, nil))

	target, err := os.Readlink(filepath.Join(jailRoot, "lib", "libfoo.so"))
	require.NoError(t, err)
	require.Equal(t, "libfoo.so.1.0", target)

	_, err = os.Stat(filepath.Join(jailRoot, "lib", "libfoo.so.1.0"))
	require.NoError(t, err, "implicit copy of the symlink target should follow")
}

func TestCopyToSkeletonRoot(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()
	skelRoot := t.TempDir()

	src := filepath.Join(hostRoot, "bin.sh")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0755))

	m := New(jailRoot, skelRoot, nil, false)
	require.NoError(t, m.Copy(src, "/bin/sh", true, nil))

	_, err := os.Stat(filepath.Join(jailRoot, "bin", "sh"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(skelRoot, "bin", "sh"))
	require.NoError(t, err, "skeleton tree should receive its own copy")
}

func TestCopyDryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	src := filepath.Join(hostRoot, "file")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	m := New(jailRoot, "", nil, true)
	require.NoError(t, m.Copy(src, "/file", true, nil))

	_, err := os.Stat(filepath.Join(jailRoot, "file"))
	require.True(t, os.IsNotExist(err))
}

func TestCopyMountHookInvokedForDirectories(t *testing.T) {
	t.Parallel()

	hostRoot := t.TempDir()
	jailRoot := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(hostRoot, "proc"), 0555))

	var seen []string
	hook := func(hostDir, jailDir string) error {
		seen = append(seen, hostDir)
		return nil
	}

	m := New(jailRoot, "", nil, false)
	require.NoError(t, m.Copy(filepath.Join(hostRoot, "proc"), "/proc", true, hook))
	require.Contains(t, seen, filepath.Join(hostRoot, "proc"))
}
