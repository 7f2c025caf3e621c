// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/jaillaunch"
	"github.com/pa-jail/pajail/internal/mountplan"
	"github.com/pa-jail/pajail/internal/session"
	"github.com/pa-jail/pajail/internal/supervisor"
	"github.com/pa-jail/pajail/internal/validate"
)

// RunOptions bundles the `run`-only flags, layered on top of
// PopulateOptions since `run` populates before launching.
type RunOptions struct {
	Populate PopulateOptions

	Owner string
	Env   []string
	Argv  []string

	Foreground   bool
	WindowCols   uint16
	WindowRows   uint16
	DisableONLCR bool
	ReadyMarker  string
	Quiet        bool

	Timeout, IdleTimeout time.Duration
	EventSourceSocket    string
	TimingFile           string

	PIDFile     string
	PIDContents string

	// CallerInput, if non-nil, replaces stdin as the launched
	// process's input, -i/--input.
	CallerInput *os.File
}

// Run populates jailDir (if any manifest sources were given — a bare
// `run` against an already-populated jail supplies none), then
// launches Argv as Owner inside it, blocking until the run completes.
// It returns the process exit code: 0 on a clean exit, or the mapped
// code for a timeout, signal, or internal failure.
func Run(jailDir string, opts RunOptions, log *auditlog.Log) (int, error) {
	log.Note("run %s: correlation id %s", jailDir, uuid.New().String())

	owner, err := jaillaunch.ResolveIdentity("", opts.Owner)
	if err != nil {
		return supervisorExitPrivilege, err
	}

	table, err := mountplan.LoadProcMounts()
	if err != nil {
		return supervisorExitIOError, fmt.Errorf("load host mount table: %w", err)
	}

	var mountRequests []jaillaunch.MountRequest
	if len(opts.Populate.Manifests) > 0 {
		mountRequests, err = Populate(jailDir, opts.Populate, owner, table, log)
		if err != nil {
			return supervisorExitIOError, err
		}
	}

	cfg := jaillaunch.Config{
		JailDir:           strings.TrimSuffix(jailDir, "/") + "/",
		Owner:             owner.Uid,
		Group:             owner.Gid,
		OwnerHome:         owner.Home,
		OwnerShell:        owner.Shell,
		Argv:              opts.Argv,
		Env:               jaillaunch.BuildEnv(owner.Home, opts.Env),
		Foreground:        opts.Foreground,
		WindowCols:        opts.WindowCols,
		WindowRows:        opts.WindowRows,
		DisableONLCR:      opts.DisableONLCR,
		ReadyMarker:       opts.ReadyMarker,
		Quiet:             opts.Quiet,
		Timeout:           opts.Timeout,
		IdleTimeout:       opts.IdleTimeout,
		EventSourceSocket: opts.EventSourceSocket,
		TimingFile:        opts.TimingFile,
		MountRequests:     mountRequests,
		CallerInput:       opts.CallerInput,
	}

	// Pre-flight checks run after Populate (the jail's tree, including
	// the owner's home and shell, may not have existed before it) and
	// before any privilege is touched: setup errors are always fatal
	// to the engine process, and never let the user program start. A
	// dry run never materializes anything, so there is nothing on disk
	// yet to check.
	if !opts.Populate.DryRun {
		v := validate.New()
		v.ValidateAll(cfg)
		if v.HasErrors() {
			v.PrintResults(os.Stderr)
			return supervisorExitUsageOrFatal, fmt.Errorf("run %s: pre-flight validation failed", jailDir)
		}
	}

	pidLock, err := lockPIDFile(opts.PIDFile)
	if err != nil {
		return supervisorExitIOError, err
	}
	if pidLock != nil {
		defer pidLock.Close()
	}

	result, err := jaillaunch.Launch(cfg, table, log, opts.Populate.DryRun)
	if err != nil {
		return supervisorExitPrivilege, err
	}

	if pidLock != nil {
		if err := writePIDFile(pidLock, opts.PIDContents, result.Pid); err != nil {
			return supervisorExitIOError, err
		}
	}

	// A dry run's "clone" is the caller's own process running Enter in
	// place (launcher_linux's Launch dryRun branch): there is no
	// separate pid to wait for.
	if opts.Populate.DryRun {
		return supervisorExitSuccess, nil
	}

	// Launch only starts the reexec'd child (running jaillaunch.Enter)
	// and hands back its pid; that child owns the actual jail-entry
	// sequence and, once its own forkExec/runSupervised concludes,
	// os.Exits with the supervised run's exit code. Waiting on it here
	// and forwarding its wait status is this process's own copy of
	// that same code.
	proc, err := os.FindProcess(result.Pid)
	if err != nil {
		return supervisorExitIOError, fmt.Errorf("find jail process %d: %w", result.Pid, err)
	}
	state, err := proc.Wait()
	if err != nil {
		return supervisorExitIOError, fmt.Errorf("wait for jail process %d: %w", result.Pid, err)
	}
	return exitCodeFromState(state), nil
}

// exitCodeFromState translates a waited-on process's termination into
// an exit code: a killed-by-signal child maps to 128+n, otherwise its
// own exit status is forwarded unchanged (jaillaunch.Enter, on the
// other side, already performed that same mapping for the jailed
// command it supervised).
func exitCodeFromState(state *os.ProcessState) int {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		if state.Success() {
			return supervisorExitSuccess
		}
		return supervisorExitUsageOrFatal
	}
	if status.Signaled() {
		return supervisor.ExitForSignal(unix.Signal(status.Signal()))
	}
	return status.ExitStatus()
}

const (
	supervisorExitSuccess      = supervisor.ExitSuccess
	supervisorExitUsageOrFatal = supervisor.ExitUsageOrFatal
	supervisorExitIOError      = supervisor.ExitIOError
	supervisorExitPrivilege    = supervisor.ExitPrivilegeError
)

// lockPIDFile opens path (if non-empty) and takes an advisory
// exclusive flock for the run's lifetime: competing instances
// targeting the same pidfile block rather than racing to overwrite it.
func lockPIDFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open pidfile %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock pidfile %s: %w", path, err)
	}
	return f, nil
}

// writePIDFile expands template against pid and writes it to f,
// ensuring a trailing newline per Pidfile section.
func writePIDFile(f *os.File, template string, pid int) error {
	sess := &session.Session{Pid: pid}
	content := sess.ExpandPIDContents(template)
	if len(content) == 0 || content[len(content)-1] != '\n' {
		content += "\n"
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate pidfile: %w", err)
	}
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}
