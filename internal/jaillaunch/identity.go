// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jaillaunch

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// nobodyHome is substituted for an owner whose passwd home directory
// is exactly "/", matching jailownerinfo::init's special case for
// system accounts that have never been given a real home.
const nobodyHome = "/home/nobody"

// Identity is a resolved, validated jail owner: everything Config
// needs to drop privileges and start the owner's session correctly.
type Identity struct {
	Name     string
	Uid, Gid int
	Home     string
	Shell    string
}

// ResolveIdentity looks up ownerName via the system passwd database
// and validates it the way jailownerinfo::init does: reject overlong
// names, reject uid 0, normalize a bare "/" home to /home/nobody,
// require every other home to live under /home/, and require the
// shell to be allowlisted (see AllowedShell). root is the host
// filesystem root /etc/shells is read from — normally "" for the
// real root, overridable in tests.
func ResolveIdentity(root, ownerName string) (Identity, error) {
	if len(ownerName) >= 1024 {
		return Identity{}, fmt.Errorf("jaillaunch: owner name too long")
	}

	u, err := user.Lookup(ownerName)
	if err != nil {
		return Identity{}, fmt.Errorf("jaillaunch: unknown user %q: %w", ownerName, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("jaillaunch: malformed uid for %q: %w", ownerName, err)
	}
	if uid == 0 {
		return Identity{}, fmt.Errorf("jaillaunch: jail owner cannot be root")
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("jaillaunch: malformed gid for %q: %w", ownerName, err)
	}

	home := u.HomeDir
	switch {
	case home == "/":
		home = nobodyHome
	case strings.HasPrefix(home, "/home/"):
		// unchanged
	default:
		return Identity{}, fmt.Errorf("jaillaunch: home directory %s not under /home", u.HomeDir)
	}

	shell, err := lookupShell(ownerName)
	if err != nil {
		return Identity{}, err
	}
	if !AllowedShell(root, shell) {
		return Identity{}, fmt.Errorf("jaillaunch: shell %s not allowed by /etc/shells", shell)
	}

	return Identity{Name: ownerName, Uid: uid, Gid: gid, Home: home, Shell: shell}, nil
}

// lookupShell reads /etc/passwd directly for name's login shell.
// os/user.Lookup does not expose pw_shell (it is Linux/BSD-specific
// and Go's portable User struct omits it), so this mirrors the
// getpwnam call in jailownerinfo::init with a plain line scanner.
func lookupShell(name string) (string, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return "", fmt.Errorf("jaillaunch: open /etc/passwd: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 7 || fields[0] != name {
			continue
		}
		return fields[6], nil
	}
	return "", fmt.Errorf("jaillaunch: %q not found in /etc/passwd", name)
}
