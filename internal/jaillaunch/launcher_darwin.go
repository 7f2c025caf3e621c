// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package jaillaunch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/mountplan"
)

// Launch runs the degraded macOS development path: no mount/PID
// namespaces (Darwin has neither), so isolation is chroot(2) plus a
// plain fork/exec, matching the original's `#else` branch of exec_go
// (chdir(jdir); chroot(".")). This path exists so pa-jail's
// manifest/policy/materializer logic can be exercised on a
// development machine; it provides none of Linux's namespace or PID
// isolation guarantees, and invariants that depend on those (process
// visibility, mount containment) do not hold here.
func Launch(cfg Config, _ *mountplan.Table, log *auditlog.Log, dryRun bool) (*Result, error) {
	log.Command("cd", cfg.JailDir)
	log.Command("chroot", ".")
	if !dryRun {
		if err := os.Chdir(cfg.JailDir); err != nil {
			return nil, fmt.Errorf("chdir %s: %w", cfg.JailDir, err)
		}
		if err := syscall.Chroot("."); err != nil {
			return nil, fmt.Errorf("chroot: %w", err)
		}
	}

	cmd := exec.Command(cfg.Argv[0], cfg.Argv[1:]...)
	cmd.Env = cfg.Env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if cfg.CallerInput != nil {
		cmd.Stdin = cfg.CallerInput
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(cfg.Owner), Gid: uint32(cfg.Group)},
	}

	log.Command(cfg.Argv...)
	if dryRun {
		return &Result{Pid: os.Getpid()}, nil
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", cfg.Argv[0], err)
	}
	return &Result{Pid: cmd.Process.Pid}, cmd.Wait()
}

// Enter has no meaning on the degraded macOS path: there is no
// separate namespace-entry phase to reexec into, since Launch above
// performs chroot and exec directly in one process.
func Enter(string) error {
	return fmt.Errorf("jaillaunch: __pa-jail-enter is not meaningful on darwin")
}
