// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform detects what jail isolation features the host
// actually supports, so the CLI can fail fast with a clear diagnosis
// instead of a confusing errno deep inside namespace setup.
package platform

import (
	"os"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Capabilities describes what jail isolation features are available
// on this host, mirroring the shape (if not the content) of the
// teacher's own sandbox capability probe: a struct of booleans
// populated by a handful of independent, best-effort checks, plus a
// SkipReason a caller can surface directly to an operator.
type Capabilities struct {
	// Linux is true when running on a kernel that supports mount/PID/IPC
	// namespaces and pivot_root(2). False means the degraded macOS
	// dev-mode path (chroot + plain fork) is the only option.
	Linux bool

	// PivotRootAvailable is true if pivot_root(2) is implemented on
	// this kernel (present on every Linux kernel pa-jail targets, but
	// probed rather than assumed since it fails loudly and cheaply).
	PivotRootAvailable bool

	// UnprivilegedUserNamespacesEnabled reports whether the kernel
	// permits CLONE_NEWUSER without CAP_SYS_ADMIN. pa-jail itself
	// always runs its namespace entry as euid 0 (setuid-root or
	// invoked by root per privilege ladder) and so does not
	// require this, but a false value here is a strong signal an
	// administrator has hardened the kernel in a way that will also
	// affect diagnosis of unrelated namespace failures.
	UnprivilegedUserNamespacesEnabled bool

	// RunningAsRoot is true if the effective uid is 0, required before
	// the Jail Launcher's privilege ladder can raise/lower identities.
	RunningAsRoot bool
}

// Detect probes the current host for the capabilities the Jail
// Launcher needs.
func Detect() *Capabilities {
	caps := &Capabilities{
		Linux:         runtime.GOOS == "linux",
		RunningAsRoot: os.Geteuid() == 0,
	}
	if caps.Linux {
		caps.PivotRootAvailable = probePivotRoot()
		caps.UnprivilegedUserNamespacesEnabled = probeUnprivilegedUserNamespaces()
	}
	return caps
}

// CanRunFullIsolation reports whether the Jail Launcher's Linux path
// (mount/PID/IPC namespaces plus pivot_root) is usable.
func (c *Capabilities) CanRunFullIsolation() bool {
	return c.Linux && c.PivotRootAvailable && c.RunningAsRoot
}

// SkipReason returns a human-readable reason full isolation isn't
// available, or empty string if it is.
func (c *Capabilities) SkipReason() string {
	switch {
	case !c.Linux:
		return "not running on Linux: falling back to the degraded chroot-only dev-mode path"
	case !c.RunningAsRoot:
		return "not running as root: the jail launcher's privilege ladder requires euid 0 at startup"
	case !c.PivotRootAvailable:
		return "pivot_root(2) unavailable on this kernel"
	default:
		return ""
	}
}

// probePivotRoot detects pivot_root(2) support by attempting the call
// with two arguments guaranteed to make it fail for a reason other
// than "no such syscall" (ENOSYS): a non-existent path pair returns
// ENOENT, an unmounted regular file returns EINVAL/ENOTDIR — either
// confirms the syscall exists.
func probePivotRoot() bool {
	err := unix.PivotRoot("/nonexistent-pa-jail-probe", "/nonexistent-pa-jail-probe-old")
	return err != syscall.ENOSYS
}

// probeUnprivilegedUserNamespaces reads the kernel's unprivileged
// user-namespace sysctl; a "0" means the administrator has
// disabled unprivileged CLONE_NEWUSER, which is diagnostic context
// even though pa-jail's own launch path doesn't depend on it.
func probeUnprivilegedUserNamespaces() bool {
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err != nil {
		// Missing sysctl usually means the distribution allows it
		// unconditionally (most kernels predate the Debian-added knob).
		return true
	}
	return strings.TrimSpace(string(data)) != "0"
}
