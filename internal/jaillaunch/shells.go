// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jaillaunch

import (
	"bufio"
	"os"
	"strings"
)

const etcShells = "/etc/shells"

// hardcodedShells are accepted regardless of /etc/shells contents,
// mirroring check_shell's explicit fast path for the two shells every
// jail base image is expected to carry.
var hardcodedShells = []string{"/bin/bash", "/bin/sh"}

// AllowedShell reports whether shell may be used as an owner's login
// shell: either one of hardcodedShells, or a non-comment, non-blank
// line of /etc/shells read relative to root — matching check_shell's
// getusershell()/endusershell() loop over the system shells database.
func AllowedShell(root, shell string) bool {
	for _, s := range hardcodedShells {
		if shell == s {
			return true
		}
	}

	f, err := os.Open(root + etcShells)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == shell {
			return true
		}
	}
	return false
}
