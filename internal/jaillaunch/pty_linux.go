// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package jaillaunch

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/auditlog"
)

// ptyPair holds an allocated master/slave PTY pair before the child
// that will own the slave has forked.
type ptyPair struct {
	master *os.File
	slave  string
}

// openPTY opens /dev/ptmx, unlocks the paired slave, and applies the
// requested window size; it does not change the slave's ownership. It reaches the slave name via
// the TIOCGPTN/TIOCSPTLCK ioctls instead of the glibc grantpt/unlockpt
// wrappers, since this process may not link against glibc's pty
// helpers portably.
func openPTY(cols, rows uint16, disableONLCR bool, dryRun bool, log *auditlog.Log) (*ptyPair, error) {
	log.Command("make-pty")
	if dryRun {
		return &ptyPair{slave: "/dev/pts/dry-run"}, nil
	}

	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}

	if err := applyRawIflags(master, disableONLCR); err != nil {
		master.Close()
		return nil, err
	}

	var unlock int32 // 0 unlocks the slave
	if err := unix.IoctlSetPointerInt(int(master.Fd()), unix.TIOCSPTLCK, int(unlock)); err != nil {
		master.Close()
		return nil, fmt.Errorf("unlock pty: %w", err)
	}

	n, err := unix.IoctlGetInt(int(master.Fd()), unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("pty number: %w", err)
	}
	slave := fmt.Sprintf("/dev/pts/%d", n)

	if cols > 0 || rows > 0 {
		if err := setWindowSize(master, cols, rows); err != nil {
			master.Close()
			return nil, err
		}
	}

	return &ptyPair{master: master, slave: slave}, nil
}

// applyRawIflags sets the same input-flag adjustments the original
// applies right after opening the PTY master: BRKINT/IGNPAR/IMAXBEL
// (and IUTF8 where available) so a break condition and parity errors
// behave sanely for an interactive session, and bell characters don't
// starve the terminal's input queue.
func applyRawIflags(master *os.File, disableONLCR bool) error {
	term, err := unix.IoctlGetTermios(int(master.Fd()), unix.TCGETS)
	if err != nil {
		return nil // best-effort, matches the original's tcgetattr>=0 guard
	}
	term.Iflag |= unix.BRKINT | unix.IGNPAR | unix.IMAXBEL | unix.IUTF8
	if disableONLCR {
		term.Oflag &^= unix.ONLCR
	} else {
		term.Oflag |= unix.ONLCR
	}
	return unix.IoctlSetTermios(int(master.Fd()), unix.TCSETS, term)
}

// setWindowSize applies cols/rows to the PTY via TIOCSWINSZ, for the
// `--size WIDTHxHEIGHT` flag.
func setWindowSize(master *os.File, cols, rows uint16) error {
	ws := &unix.Winsize{Col: cols, Row: rows}
	return unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, ws)
}
