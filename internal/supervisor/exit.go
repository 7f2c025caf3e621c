// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "golang.org/x/sys/unix"

// Exit codes pa-jail's own tooling (and test suite) can match against.
const (
	ExitSuccess        = 0
	ExitUsageOrFatal   = 1
	ExitTimeout        = 124
	ExitIOError        = 125
	ExitExecFailure    = 126
	ExitPrivilegeError = 127
)

// ExitForSignal maps a child killed-by-signal number to the
// supervisor's own exit code, 128+n.
func ExitForSignal(sig unix.Signal) int { return 128 + int(sig) }

// ExitForTermination is the exit code used both for an external
// SIGTERM and for the caller-requested ESC Ctrl-C kill sequence,
// so both map to the same "128 + SIGTERM" exit code.
func ExitForTermination() int { return ExitForSignal(unix.SIGTERM) }
