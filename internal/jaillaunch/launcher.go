// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package jaillaunch starts the jailed process: entering the mount
// and PID namespaces, pivoting the root filesystem, dropping
// privileges to the jail owner, allocating a PTY, and finally execing
// the requested command.
package jaillaunch

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ReexecArg is the hidden first argument (argv[1]) pa-jail's own binary recognizes to
// mean "you are the clone()d child, run the entry sequence instead of
// the CLI", mirroring the original's single-binary clone(2)
// entrypoint (exec_clone_function) reimagined as a self-reexec, since
// Go's runtime does not tolerate a bare clone(2) without an
// intervening exec (see DESIGN.md, "Jail Launcher: clone via
// self-reexec").
const ReexecArg = "__pa-jail-enter"

// Config describes one jail invocation: the tree to enter, the
// identity to drop to, the command to run, and the terminal/timeout
// parameters that shape the launch.
type Config struct {
	// JailDir is the jail root, with a trailing slash (as the
	// original's jaildir.dir invariant requires).
	JailDir string
	// Owner/Group are the uid/gid the launched process runs as, after
	// entry via the privilege ladder below.
	Owner, Group int
	// OwnerHome is the directory the launched process starts in.
	OwnerHome string
	// OwnerShell is checked for read+execute access before launch, so
	// a broken NSS-driven shell lookup fails fast with a clear error
	// instead of an opaque execve ENOENT deep inside the jail.
	OwnerShell string
	// Argv is the command to execve inside the jail. A single-element
	// Argv naming a login shell binary requests an interactive PTY
	// session.
	Argv []string
	// Env is the curated environment handed to Argv (see env.go).
	Env []string
	// Foreground, when true, keeps stdio attached to the caller's
	// terminal rather than allocating an internal PTY relayed over
	// SSE.
	Foreground bool
	// WindowCols/WindowRows, when non-zero, are applied to the allocated PTY
	// before the child execs.
	WindowCols, WindowRows uint16
	// DisableONLCR turns off the PTY's ONLCR output translation, so a
	// caller relaying raw bytes to a non-terminal subscriber does not
	// see injected carriage returns.
	DisableONLCR bool
	// ReadyMarker, if non-empty, is written to stdout immediately
	// before execve, letting a supervisor detect "the jail is ready
	// for input" without racing the exec itself.
	ReadyMarker string
	// Quiet suppresses the colored exit banner otherwise printed to a
	// tty stderr.
	Quiet bool

	// Timeout and IdleTimeout bound the supervised run (`-T/--timeout`
	// and `-I/--idle-timeout`); zero disables each.
	Timeout, IdleTimeout time.Duration
	// EventSourceSocket, if non-empty, is the path (or `@abstract`
	// name) of the UNIX socket the supervisor listens on for SSE
	// subscribers.
	EventSourceSocket string
	// TimingFile, if non-empty, receives one delta/absolute record per
	// supervisor loop iteration that actually blocked.
	TimingFile string

	// MountRequests carries every manifest-driven `[bind]`/`[bind-ro]`/
	// `[mount]` entry the populate step recorded with a Mount Planner,
	// so the reexec'd child can Handle each once it has actually
	// entered the jail's own mount namespace (see internal/engine's
	// Populate and MountRequest).
	MountRequests []MountRequest

	// CallerInput, if non-nil, replaces os.Stdin as the reexec'd
	// child's fd 0 (`-i/--input PATH`). It is never serialized across
	// the reexec config file: exec.Command attaches it to the cloned
	// child directly, the same way cmd.Stdout/Stderr already do.
	CallerInput *os.File `json:"-"`
}

// MountRequest is one manifest-driven mount the launcher must Handle
// once inside the jail's mount namespace: Src is the Mount Planner
// table key (see materializer.MountRequest), Dst the jail-absolute
// mount point.
type MountRequest struct {
	Src, Dst string
}

// Result reports the launched child's PID and, for non-foreground
// launches, the PTY master fd multiplexed with it.
type Result struct {
	Pid        int
	PTYMaster  *os.File
	PTYSlaveNm string
}

// IsReexecInvocation reports whether argv names this process as the
// clone()d child rather than a normal CLI invocation.
func IsReexecInvocation(argv []string) bool {
	return len(argv) > 1 && argv[1] == ReexecArg
}

// reexecSelf resolves this process's own binary the way the self-clone
// examples in the pack do, preferring /proc/self/exe over os.Args[0]
// since the latter is unreliable once the working directory or PATH
// has changed underneath a long-lived setuid binary.
func reexecSelf() (string, error) {
	if self, err := os.Readlink("/proc/self/exe"); err == nil {
		return self, nil
	}
	path, err := exec.LookPath(os.Args[0])
	if err != nil {
		return "", fmt.Errorf("resolve own executable: %w", err)
	}
	return path, nil
}
