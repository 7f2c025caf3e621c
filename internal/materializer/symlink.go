// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package materializer

import "strings"

// resolveSymlinkTarget expands a just-created symlink's target into an
// (src, dst) pair for an implicit follow-up copy of whatever the
// symlink points at.
//
// If the target is absolute, it is resolved against root (the jail
// root, or the skeleton root when the destination lies outside the
// jail's own subtree) directly.
//
// If the target is relative, both src and dst are walked up one
// directory at a time — stripping a trailing path component from
// each side in lockstep — once per leading "../" segment in the
// target, until either side cannot be shortened further (in which
// case the target is unreachable and materialization of it is
// skipped) or the target's leading "../" segments are exhausted. The
// remaining (non-"../") suffix of the target is then appended to both
// truncated prefixes.
//
// ok is false when the descent could not proceed (src or dst reached
// its root-relative floor before the target's ".." segments were
// exhausted); the caller must skip this entry rather than treat it as
// fatal ("Symlink target requiring more than
// root-relative descent → entry skipped, not fatal").
func resolveSymlinkTarget(root, src, dst, target string) (newSrc, newDst string, ok bool) {
	if strings.HasPrefix(target, "/") {
		return target, root + target, true
	}

	for {
		if len(src) <= 1 {
			return "", "", false
		}
		srcSlash := lastSlashBeforeEnd(src)
		dstSlash := lastSlashBeforeEnd(dst)
		if srcSlash < 0 || dstSlash < 0 || dstSlash < len(root) {
			return "", "", false
		}
		src = src[:srcSlash+1]
		dst = dst[:dstSlash+1]

		if strings.HasPrefix(target, "../") {
			target = target[3:]
			continue
		}
		break
	}

	return src + target, dst + target, true
}

// lastSlashBeforeEnd finds the last '/' in s before its final byte,
// mirroring the original's rfind(pos.length()-2): a trailing slash on
// s itself is not itself a candidate split point.
func lastSlashBeforeEnd(s string) int {
	if len(s) < 2 {
		return -1
	}
	return strings.LastIndexByte(s[:len(s)-1], '/')
}

// isProcTarget reports whether a resolved absolute destination lies
// under /proc/, which this says must never be enqueued
// ("Enqueued targets beginning with /proc/ are skipped").
func isProcTarget(rootRelativeDst string) bool {
	return strings.HasPrefix(rootRelativeDst, "/proc/")
}
