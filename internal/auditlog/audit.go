// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditlog echoes effectful operations as shell-like command
// lines: verbose mode echoes every effectful operation as a
// shell-like command on stderr (or stdout in dry-run), enabling an
// administrator to audit or replay what a run actually did.
package auditlog

import (
	"fmt"
	"io"
	"strings"
)

// Log writes effectful operations as one shell-quoted line per call.
// The zero value discards everything, so callers that do not care
// about auditing can pass a zero Log without a nil check.
type Log struct {
	w       io.Writer
	verbose bool
}

// New returns a Log that writes to w when enabled is true. When
// enabled is false, Command and Note are no-ops — this lets callers
// unconditionally call the logger without branching on verbosity at
// every call site, the same way calling slog.Debug unconditionally
// and letting the handler's level decide works.
func New(w io.Writer, enabled bool) *Log {
	return &Log{w: w, verbose: enabled}
}

// Command writes a shell-quoted representation of argv, e.g.
// mkdir -p '/jails/a/bin'
func (l *Log) Command(argv ...string) {
	if l == nil || !l.verbose || l.w == nil {
		return
	}
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quote(a)
	}
	fmt.Fprintln(l.w, strings.Join(parts, " "))
}

// Note writes a free-form comment line prefixed with "# ".
func (l *Log) Note(format string, args ...any) {
	if l == nil || !l.verbose || l.w == nil {
		return
	}
	fmt.Fprintf(l.w, "# "+format+"\n", args...)
}

// quote applies minimal POSIX single-quoting, escaping embedded single
// quotes with the '"'"' idiom. Arguments with no shell metacharacters
// are left unquoted for readability, matching how a human would
// transcribe the same command by hand.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$&|;<>()[]{}*?~`\\#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
