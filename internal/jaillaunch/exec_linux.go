// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package jaillaunch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/supervisor"
)

// forkExec starts the final, permanently-unprivileged process that
// becomes the jailed command, replicating the original's second
// fork()+setresuid(owner,owner,owner)+execve. Rather than a bare
// fork() from Go (unsafe once the runtime's scheduler and other
// goroutines are involved), this uses os/exec's own fork+exec with
// SysProcAttr.Credential to perform the privilege drop atomically in
// the child before its exec, which is the idiomatic Go equivalent of
// "drop root, then exec" and needs no manual signal-mask or fd
// bookkeeping around the fork boundary.
func forkExec(cfg Config, pty *ptyPair, dryRun bool, log *auditlog.Log) error {
	logExecLine(cfg, log)
	if dryRun {
		return nil
	}

	cmd := exec.Command(cfg.Argv[0], cfg.Argv[1:]...)
	cmd.Env = cfg.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(cfg.Owner), Gid: uint32(cfg.Group)},
		Setsid:     true,
	}

	if pty == nil {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("exec %s: %w", cfg.Argv[0], err)
		}
		err := cmd.Wait()
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				return &ExitError{Code: supervisor.ExitForSignal(unix.Signal(status.Signal()))}
			}
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return err
	}

	slave, err := os.OpenFile(pty.slave, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", pty.slave, err)
	}
	defer slave.Close()

	cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 0

	if err := cmd.Start(); err != nil {
		pty.master.Close()
		return fmt.Errorf("exec %s: %w", cfg.Argv[0], err)
	}
	slave.Close()

	return runSupervised(cfg, pty, cmd.Process.Pid, log)
}

// runSupervised hands the PTY master and tracked pid to a supervisor
// Loop rather than blocking on cmd.Wait, so the master fd is
// multiplexed against stdin, SSE subscribers, timeouts, and signals
// instead of held by a single blocking Read/Write.
func runSupervised(cfg Config, pty *ptyPair, pid int, log *auditlog.Log) error {
	defer pty.master.Close()

	restore := captureCallerTerminal()
	defer restore()

	if err := unix.SetNonblock(int(pty.master.Fd()), true); err != nil {
		return fmt.Errorf("set pty master non-blocking: %w", err)
	}
	if err := unix.SetNonblock(unix.Stdin, true); err != nil {
		return fmt.Errorf("set stdin non-blocking: %w", err)
	}
	if err := unix.SetNonblock(unix.Stdout, true); err != nil {
		return fmt.Errorf("set stdout non-blocking: %w", err)
	}

	signals, err := supervisor.NewSignalReceiver()
	if err != nil {
		return fmt.Errorf("signal receiver: %w", err)
	}
	defer signals.Close()

	loopCfg := supervisor.Config{
		CallerInputFD:       unix.Stdin,
		CallerOutputFD:      unix.Stdout,
		PTYMasterFD:         int(pty.master.Fd()),
		ChildPid:            pid,
		Signals:             signals,
		EventSourceListenFD: -1,
		StartedAt:           time.Now(),
		Timeout:             cfg.Timeout,
		IdleTimeout:         cfg.IdleTimeout,
	}

	var listener *supervisor.EventSourceListener
	if cfg.EventSourceSocket != "" {
		listener, err = supervisor.ListenEventSource(cfg.EventSourceSocket)
		if err != nil {
			return fmt.Errorf("listen event source: %w", err)
		}
		defer listener.Close()
		loopCfg.EventSourceListenFD = listener.FD()
		loopCfg.Accept = func() (*supervisor.Subscriber, error) {
			return listener.Accept(loopCfg.FromSlaveSeededOffset)
		}
	}

	if cfg.TimingFile != "" {
		f, err := os.OpenFile(cfg.TimingFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("open timing file %s: %w", cfg.TimingFile, err)
		}
		defer f.Close()
		loopCfg.Timing = supervisor.NewTimingWriter(f)
	}

	log.Note("supervising pid %d", pid)
	loop := supervisor.NewLoop(loopCfg)
	code := loop.Run()
	if !cfg.Quiet {
		printExitBanner(loop.ExitReason(), code)
	}
	if code != supervisor.ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// captureCallerTerminal puts the caller's controlling terminal into
// raw mode with VMIN=1, VTIME=1 for the duration of a supervised run,
// restoring it on exit. term.MakeRaw's own raw mode leaves VTIME at
// 0; the VTIME=1 tweak
// here is applied afterward with a direct ioctl. It is a no-op,
// returning a no-op restore, when stdin is not a terminal.
func captureCallerTerminal() func() {
	fd := unix.Stdin
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	if termios, err := unix.IoctlGetTermios(fd, unix.TCGETS); err == nil {
		termios.Cc[unix.VMIN] = 1
		termios.Cc[unix.VTIME] = 1
		unix.IoctlSetTermios(fd, unix.TCSETS, termios)
	}
	return func() { term.Restore(fd, state) }
}

// printExitBanner writes a one-line colored summary of how the run
// ended to stderr, when stderr is attached to a terminal. Colors are
// raw ANSI escapes rather than a terminal color library, matching how
// pa-jail's own terminal UI renders color elsewhere.
func printExitBanner(reason string, code int) {
	if !term.IsTerminal(unix.Stderr) {
		return
	}
	color := "\x1b[32m" // green
	if code != 0 {
		color = "\x1b[31m" // red
	}
	fmt.Fprintf(os.Stderr, "%s[pa-jail] %s (exit %d)\x1b[0m\n", color, reason, code)
}

// ExitError carries a non-zero process exit code up through Enter/
// Launch without conflating it with a Go error's usual "something
// went wrong internally" meaning — a timeout, a killed-by-signal
// child, or the child's own exit status all need to reach main()
// intact rather than collapse to a generic failure.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return fmt.Sprintf("exit code %d", e.Code) }

// IsExitError reports whether err is an *ExitError and returns its
// code, letting a caller (cmd/pa-jail's main) distinguish "the run
// completed with this exit code" from an actual launch failure.
func IsExitError(err error) (int, bool) {
	exitErr, ok := err.(*ExitError)
	if !ok {
		return 0, false
	}
	return exitErr.Code, true
}

func logExecLine(cfg Config, log *auditlog.Log) {
	argv := append([]string{}, cfg.Env...)
	argv = append(argv, cfg.Argv...)
	log.Command(argv...)
}
