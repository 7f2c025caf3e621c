// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package materializer copies, links, and mounts manifest entries into
// a jail tree. Parent directories and symlink targets are materialized
// through recursive calls, and each regular file is copied with an
// in-process io.Copy followed by Fchmod/Lchown/Lutimes rather than a
// forked `cp -p` (see DESIGN.md, "Deliberate departure — `cp -p`
// replaced by in-process copy").
package materializer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pa-jail/pajail/internal/auditlog"
)

// Materializer copies manifest entries into a jail root, deduplicating
// destinations and hard-linking regular files that share a (dev, ino)
// pair with one already materialized.
type Materializer struct {
	// Root is the jail's destination root (dstroot in the original),
	// with no trailing slash.
	Root string
	// SkeletonRoot, when non-empty, is a second tree that receives a
	// copy of every non-bind, non-mount entry before Root does, so
	// later jails can hard-link against it instead of re-copying.
	SkeletonRoot string

	Log *auditlog.Log
	// DryRun, when true, performs no filesystem mutation; only the
	// audit log is written to.
	DryRun bool

	devino     *devInoCache
	skelDevino *devInoCache
	dstSeen    map[string]bool
	lastParent string
}

// New creates a Materializer rooted at root.
func New(root, skeletonRoot string, log *auditlog.Log, dryRun bool) *Materializer {
	return &Materializer{
		Root:         strings.TrimSuffix(root, "/"),
		SkeletonRoot: strings.TrimSuffix(skeletonRoot, "/"),
		Log:          log,
		DryRun:       dryRun,
		devino:       newDevInoCache(),
		skelDevino:   newDevInoCache(),
		dstSeen:      make(map[string]bool),
	}
}

// Copy materializes src (an absolute host path) at subdst (an
// absolute path relative to the jail root) using the hard-link reuse
// policy given by reuseLink (false for entries carrying the `cp`
// flag, per KindCp). It mirrors handle_copy: trailing
// slashes are stripped (lstat on a symlink path with a trailing slash
// follows the link, which handle_copy must not do), the destination
// is deduplicated against previously materialized paths, the parent
// directory is materialized first (memoized against the immediately
// preceding call, mirroring the original's static last_parentdir),
// and directories additionally trigger mount-point promotion via the
// caller-supplied MountHook.
//
// MountHook is invoked with (hostDir, jailDir) whenever a directory
// entry is materialized, so the caller (internal/mountplan) can
// decide whether the directory should become a bind mount instead of
// a plain copy. A nil hook is a no-op.
func (m *Materializer) Copy(src, subdst string, reuseLink bool, mountHook func(hostDir, jailDir string) error) error {
	src = trimTrailingSlash(src)
	subdst = trimTrailingSlash(subdst)
	if subdst == "" {
		subdst = "/"
	}

	dst := m.Root + subdst
	if m.dstSeen[dst] {
		return nil
	}
	m.dstSeen[dst] = true

	parentDir := trimTrailingSlash(filepath.Dir(dst))
	if parentDir != m.lastParent && len(parentDir) > len(m.Root) {
		m.lastParent = parentDir
		if !m.dstSeen[parentDir] {
			parentSrc := trimTrailingSlash(filepath.Dir(src))
			if err := m.Copy(parentSrc, parentDir[len(m.Root):], false, mountHook); err != nil {
				return err
			}
		}
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", src, err)
	}

	if m.SkeletonRoot != "" {
		if _, err := m.doCopy(m.SkeletonRoot+subdst, src, info, true, m.skelDevino); err != nil {
			return err
		}
	}

	target, err := m.doCopy(dst, src, info, reuseLink, m.devino)
	if err != nil {
		return err
	}
	if target != "" {
		return m.symlinkFollowup(dst, src, target, mountHook)
	}

	if info.IsDir() && mountHook != nil {
		return mountHook(src, dst)
	}
	return nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 1 && strings.HasSuffix(s, "/") {
		s = s[:len(s)-1]
	}
	return s
}

// symlinkFollowup, once a symlink has been materialized, resolves its
// target the way the target descent in resolveSymlinkTarget dictates,
// and — unless the resolved path is under /proc/ — recursively
// materializes it as an implicit additional Copy.
func (m *Materializer) symlinkFollowup(dst, src, target string, mountHook func(string, string) error) error {
	root := m.Root
	if m.SkeletonRoot != "" && !strings.HasPrefix(dst, m.Root+"/") && dst != m.Root {
		root = m.SkeletonRoot
	}

	newSrc, newDst, ok := resolveSymlinkTarget(root, src, dst, target)
	if !ok {
		return nil
	}
	if len(newDst) < len(root) || isProcTarget(newDst[len(root):]) {
		return nil
	}
	return m.Copy(newSrc, newDst[len(root):], true, mountHook)
}

var errOddFileType = errors.New("materializer: odd file type")

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT)
}
