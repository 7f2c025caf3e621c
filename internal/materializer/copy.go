// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package materializer

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// doCopy materializes one filesystem object at dst from src, given
// its already-lstat'd info, per the original's do_copy. Regular files
// reuse an existing hard link from cache when reuseLink is set and a
// prior copy of the same (dev, ino) exists; otherwise the byte
// content is copied in-process (see the package doc comment for why
// this departs from the original's /bin/cp -p).
func (m *Materializer) doCopy(dst, src string, info os.FileInfo, reuseLink bool, cache *devInoCache) (symlinkTarget string, err error) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("materialize %s: unsupported platform stat", src)
	}

	if unchanged(dst, info, sys) {
		if info.Mode().IsRegular() {
			cache.Record(uint64(sys.Dev), sys.Ino, dst)
		}
		return "", nil
	}

	switch {
	case info.Mode().IsRegular():
		if reuseLink {
			if linked, ok := cache.Lookup(uint64(sys.Dev), sys.Ino); ok {
				return "", m.link(linked, dst)
			}
			cache.Record(uint64(sys.Dev), sys.Ino, dst)
		}
		if err := m.copyRegular(src, dst, info, sys); err != nil {
			return "", err
		}

	case info.IsDir():
		perm := info.Mode().Perm() | (info.Mode() & (os.ModeSetuid | os.ModeSetgid))
		if err := m.mkdir(dst, perm); err != nil {
			return "", err
		}

	case info.Mode()&(os.ModeCharDevice|os.ModeDevice) != 0:
		if err := m.rmf(dst); err != nil {
			return "", err
		}
		if src == "/dev/ptmx" {
			return "", m.symlink("pts/ptmx", dst)
		}
		if err := m.mknod(dst, info.Mode(), sys.Rdev); err != nil {
			return "", err
		}

	case info.Mode()&os.ModeSymlink != 0:
		if err := m.rmf(dst); err != nil {
			return "", err
		}
		target, err := os.Readlink(src)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", src, err)
		}
		if err := m.symlink(target, dst); err != nil {
			return "", err
		}
		if err := m.chtimes(dst, sys); err != nil {
			return "", err
		}
		return target, nil

	default:
		return "", fmt.Errorf("materialize %s: %w", src, errOddFileType)
	}

	if sys.Uid != 0 || sys.Gid != 0 {
		return "", m.lchown(dst, int(sys.Uid), int(sys.Gid))
	}
	return "", nil
}

// unchanged reports whether dst already holds an up-to-date copy of
// the object described by info/sys, per do_copy's fast-skip
// condition: identical mode/uid/gid, and (for regular files and
// symlinks) identical size and mtime, and (for device nodes)
// identical rdev.
func unchanged(dst string, info os.FileInfo, sys *syscall.Stat_t) bool {
	var ds syscall.Stat_t
	if err := syscall.Lstat(dst, &ds); err != nil {
		return false
	}
	if ds.Mode != sys.Mode || ds.Uid != sys.Uid || ds.Gid != sys.Gid {
		return false
	}
	isRegOrLink := info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0
	if isRegOrLink && (ds.Size != sys.Size || ds.Mtim != sys.Mtim) {
		return false
	}
	isDev := info.Mode()&(os.ModeCharDevice|os.ModeDevice) != 0
	if isDev && ds.Rdev != sys.Rdev {
		return false
	}
	return true
}

func (m *Materializer) copyRegular(src, dst string, info os.FileInfo, sys *syscall.Stat_t) error {
	if err := m.rmf(dst); err != nil {
		return err
	}
	m.Log.Command("cp", "-p", src, dst)
	if m.DryRun {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		out.Close()
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return m.chtimes(dst, sys)
}

func (m *Materializer) mkdir(dst string, perm os.FileMode) error {
	if fi, err := os.Lstat(dst); err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("mkdir %s: not a directory", dst)
		}
		return nil
	}
	m.Log.Command("mkdir", "-p", "-m", fmt.Sprintf("%04o", perm), dst)
	if m.DryRun {
		return nil
	}
	if err := os.Mkdir(dst, perm); err != nil && !os.IsExist(err) {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	return os.Chmod(dst, perm)
}

func (m *Materializer) mknod(dst string, mode os.FileMode, rdev uint64) error {
	m.Log.Command("mknod", dst, devTypeLetter(mode),
		fmt.Sprintf("%d", unix.Major(rdev)), fmt.Sprintf("%d", unix.Minor(rdev)))
	if m.DryRun {
		return nil
	}
	sysMode := uint32(mode.Perm())
	if mode&os.ModeCharDevice != 0 {
		sysMode |= syscall.S_IFCHR
	} else {
		sysMode |= syscall.S_IFBLK
	}
	if err := unix.Mknod(dst, sysMode, int(rdev)); err != nil {
		return fmt.Errorf("mknod %s: %w", dst, err)
	}
	return nil
}

func devTypeLetter(mode os.FileMode) string {
	if mode&os.ModeCharDevice != 0 {
		return "c"
	}
	return "b"
}

func (m *Materializer) symlink(target, dst string) error {
	m.Log.Command("ln", "-s", target, dst)
	if m.DryRun {
		return nil
	}
	if err := os.Symlink(target, dst); err != nil && !os.IsExist(err) {
		return fmt.Errorf("symlink %s -> %s: %w", dst, target, err)
	}
	return nil
}

func (m *Materializer) link(src, dst string) error {
	m.Log.Command("ln", src, dst)
	if m.DryRun {
		return nil
	}
	if err := os.Link(src, dst); err != nil {
		return fmt.Errorf("link %s -> %s: %w", src, dst, err)
	}
	return nil
}

func (m *Materializer) rmf(dst string) error {
	m.Log.Command("rm", "-f", dst)
	if m.DryRun {
		return nil
	}
	if err := os.Remove(dst); err != nil && !isNotExist(err) {
		return fmt.Errorf("rm %s: %w", dst, err)
	}
	return nil
}

func (m *Materializer) lchown(dst string, uid, gid int) error {
	m.Log.Command("chown", "-h", fmt.Sprintf("%d:%d", uid, gid), dst)
	if m.DryRun {
		return nil
	}
	if err := os.Lchown(dst, uid, gid); err != nil {
		return fmt.Errorf("lchown %s: %w", dst, err)
	}
	return nil
}

func (m *Materializer) chtimes(dst string, sys *syscall.Stat_t) error {
	if m.DryRun {
		return nil
	}
	if err := unix.Lutimes(dst, []unix.Timeval{
		unix.NsecToTimeval(sys.Atim.Sec*1e9 + sys.Atim.Nsec),
		unix.NsecToTimeval(sys.Mtim.Sec*1e9 + sys.Mtim.Nsec),
	}); err != nil {
		return fmt.Errorf("utimes %s: %w", dst, err)
	}
	return nil
}
