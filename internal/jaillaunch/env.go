// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jaillaunch

import (
	"fmt"
	"os"
	"strings"
)

// curatedEnvKeys lists the host environment variables carried through
// into the jail, in the priority order the original's exec() applies
// them, with hard-coded fallbacks (PATH, LANG) when the host process
// itself lacks them.
var curatedEnvKeys = []string{"PATH", "LANG", "TERM", "LD_LIBRARY_PATH"}

const (
	defaultPath = "PATH=/usr/local/bin:/bin:/usr/bin"
	defaultLang = "LANG=C"
)

// BuildEnv assembles the environment handed to the jailed command:
// a small allowlist of host variables (PATH, LANG, TERM,
// LD_LIBRARY_PATH), HOME set to home, and finally any NAME=VALUE
// pairs from extra overriding or appending to the above — mirroring
// jailownerinfo::exec's environment curation, which deliberately does
// not forward the invoking process's full environment into untrusted
// student code.
func BuildEnv(home string, extra []string) []string {
	env := make([]string, 0, len(curatedEnvKeys)+len(extra)+1)

	seen := map[string]int{}
	push := func(kv string) {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if i, ok := seen[key]; ok {
			env[i] = kv
			return
		}
		seen[key] = len(env)
		env = append(env, kv)
	}

	if v, ok := os.LookupEnv("PATH"); ok {
		push("PATH=" + v)
	} else {
		push(defaultPath)
	}
	if v, ok := os.LookupEnv("LANG"); ok {
		push("LANG=" + v)
	} else {
		push(defaultLang)
	}
	if v, ok := os.LookupEnv("TERM"); ok {
		push("TERM=" + v)
	}
	if v, ok := os.LookupEnv("LD_LIBRARY_PATH"); ok {
		push("LD_LIBRARY_PATH=" + v)
	}
	push(fmt.Sprintf("HOME=%s", home))

	assignments, _ := SplitEnvArgv(extra)
	for _, kv := range assignments {
		push(kv)
	}

	return env
}

// SplitEnvArgv splits a run invocation's trailing positional arguments
// into its leading KEY=VALUE assignments and the command argv that
// follows, `JAILDIR [USER [KEY=VAL…] COMMAND…]`
// positional grammar: the first argument that does not look like an
// assignment ends the environment list.
func SplitEnvArgv(rest []string) (env, argv []string) {
	i := 0
	for i < len(rest) && isValidEnvAssignment(rest[i]) {
		i++
	}
	return rest[:i], rest[i:]
}

// isValidEnvAssignment reports whether s looks like NAME=VALUE with
// NAME composed of alphanumerics and underscores, matching the
// original's inline scan in jailownerinfo::exec.
func isValidEnvAssignment(s string) bool {
	idx := strings.IndexByte(s, '=')
	if idx <= 0 {
		return false
	}
	for _, r := range s[:idx] {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
