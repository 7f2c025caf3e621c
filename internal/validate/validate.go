// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate performs pre-flight checks for a `run` invocation:
// is the jail directory a plausible jail root, does the platform
// support full isolation, does the owner's shell exist inside the
// tree, is the event-source socket path usable. Running these up
// front turns a namespace-setup failure deep inside the reexec'd
// child into a clear diagnostic before any privilege is touched.
package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pa-jail/pajail/internal/jaillaunch"
	"github.com/pa-jail/pajail/internal/platform"
)

// Result holds the outcome of one validation check.
type Result struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // true if Passed but noteworthy
}

// Validator accumulates Results across a run's pre-flight checks.
type Validator struct {
	results []Result
	errors  int
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Results returns every check recorded so far.
func (v *Validator) Results() []Result { return v.results }

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool { return v.errors > 0 }

func (v *Validator) pass(name, message string) {
	v.results = append(v.results, Result{Name: name, Passed: true, Message: message})
}

func (v *Validator) warn(name, message string) {
	v.results = append(v.results, Result{Name: name, Passed: true, Message: message, Warning: true})
}

func (v *Validator) fail(name, message string) {
	v.results = append(v.results, Result{Name: name, Passed: false, Message: message})
	v.errors++
}

// ValidateAll runs every pre-flight check appropriate for cfg.
func (v *Validator) ValidateAll(cfg jaillaunch.Config) {
	v.ValidatePlatform()
	v.ValidateJailDir(cfg.JailDir)
	v.ValidateOwnerHome(cfg.JailDir, cfg.OwnerHome)
	v.ValidateOwnerShell(cfg.JailDir, cfg.OwnerShell)
	v.ValidateEventSourceSocket(cfg.EventSourceSocket)
}

// ValidatePlatform checks that this host can run the full isolation
// path, falling back to a warning (not a failure) off Linux since
// dev-mode is a supported, if degraded, mode of operation.
func (v *Validator) ValidatePlatform() {
	caps := platform.Detect()
	if caps.CanRunFullIsolation() {
		v.pass("platform", "namespaces and pivot_root available")
		return
	}
	if !caps.Linux {
		v.warn("platform", caps.SkipReason())
		return
	}
	v.fail("platform", caps.SkipReason())
}

// ValidateJailDir checks that the jail root exists and is a
// directory, per jaildir.dir invariant (always trailing
// slash, always materialized before a run).
func (v *Validator) ValidateJailDir(jailDir string) {
	if jailDir == "" {
		v.fail("jail_dir", "jail directory path is required")
		return
	}
	info, err := os.Stat(jailDir)
	if err != nil {
		if os.IsNotExist(err) {
			v.fail("jail_dir", fmt.Sprintf("does not exist: %s", jailDir))
		} else {
			v.fail("jail_dir", fmt.Sprintf("cannot access: %v", err))
		}
		return
	}
	if !info.IsDir() {
		v.fail("jail_dir", fmt.Sprintf("not a directory: %s", jailDir))
		return
	}
	v.pass("jail_dir", fmt.Sprintf("exists: %s", jailDir))
}

// ValidateOwnerHome checks that the owner's home directory exists
// inside the jail tree, since it becomes the launched process's
// working directory.
func (v *Validator) ValidateOwnerHome(jailDir, home string) {
	if home == "" {
		v.fail("owner_home", "owner home directory is required")
		return
	}
	path := filepath.Join(jailDir, home)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			v.fail("owner_home", fmt.Sprintf("not materialized in jail: %s", home))
		} else {
			v.fail("owner_home", fmt.Sprintf("cannot access %s: %v", path, err))
		}
		return
	}
	if !info.IsDir() {
		v.fail("owner_home", fmt.Sprintf("not a directory: %s", home))
		return
	}
	v.pass("owner_home", fmt.Sprintf("materialized: %s", home))
}

// ValidateOwnerShell checks that the owner's shell exists inside the
// jail tree and is executable, so a broken shell fails here rather
// than as an opaque execve ENOENT after namespace entry.
func (v *Validator) ValidateOwnerShell(jailDir, shell string) {
	if shell == "" {
		v.warn("owner_shell", "no shell configured; run must name an explicit command")
		return
	}
	path := filepath.Join(jailDir, shell)
	info, err := os.Stat(path)
	if err != nil {
		v.fail("owner_shell", fmt.Sprintf("not materialized in jail: %s", shell))
		return
	}
	if info.Mode()&0111 == 0 {
		v.fail("owner_shell", fmt.Sprintf("not executable: %s", shell))
		return
	}
	v.pass("owner_shell", fmt.Sprintf("available: %s", shell))
}

// ValidateEventSourceSocket checks that the socket's parent directory
// exists and, for a pathname (non-abstract) socket, that no stale
// file already occupies the path.
func (v *Validator) ValidateEventSourceSocket(path string) {
	if path == "" {
		return
	}
	if path[0] == '@' {
		v.pass("event_source", fmt.Sprintf("abstract socket: %s", path))
		return
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		v.fail("event_source", fmt.Sprintf("socket directory missing: %s", dir))
		return
	}
	if _, err := os.Stat(path); err == nil {
		v.warn("event_source", fmt.Sprintf("stale socket path will be replaced: %s", path))
		return
	}
	v.pass("event_source", fmt.Sprintf("socket path usable: %s", path))
}

// PrintResults writes a human-readable report to w.
func (v *Validator) PrintResults(w io.Writer) {
	for _, r := range v.results {
		prefix := "ok"
		switch {
		case !r.Passed:
			prefix = "FAIL"
		case r.Warning:
			prefix = "warn"
		}
		fmt.Fprintf(w, "%-4s %s: %s\n", prefix, r.Name, r.Message)
	}
	fmt.Fprintln(w)
	if v.HasErrors() {
		fmt.Fprintf(w, "validation failed with %d error(s)\n", v.errors)
	} else {
		fmt.Fprintln(w, "ready to run")
	}
}
