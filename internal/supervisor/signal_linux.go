// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package supervisor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SignalReceiver delivers SIGCHLD/SIGTERM to the event loop through a
// pollable fd instead of an asynchronous handler: both signals are
// blocked and read back through a signalfd registered in the poll
// set.
type SignalReceiver struct {
	fd int
}

// NewSignalReceiver blocks SIGCHLD and SIGTERM in the calling
// thread's signal mask and creates a signalfd for them.
func NewSignalReceiver() (*SignalReceiver, error) {
	var set unix.Sigset_t
	sigaddset(&set, unix.SIGCHLD)
	sigaddset(&set, unix.SIGTERM)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return nil, fmt.Errorf("block signals: %w", err)
	}

	fd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("signalfd: %w", err)
	}
	return &SignalReceiver{fd: fd}, nil
}

// FD returns the signalfd for inclusion in the poll set.
func (s *SignalReceiver) FD() int { return s.fd }

// Drain reads all pending signalfd_siginfo records and reports which
// signals were seen since the last call.
func (s *SignalReceiver) Drain() (sawSIGCHLD, sawSIGTERM bool, err error) {
	const sizeofSignalfdSiginfo = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	buf := make([]byte, sizeofSignalfdSiginfo*8)
	for {
		n, readErr := unix.Read(s.fd, buf)
		if readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK {
			return sawSIGCHLD, sawSIGTERM, nil
		}
		if readErr != nil {
			return sawSIGCHLD, sawSIGTERM, readErr
		}
		if n == 0 {
			return sawSIGCHLD, sawSIGTERM, nil
		}
		for off := 0; off+sizeofSignalfdSiginfo <= n; off += sizeofSignalfdSiginfo {
			info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[off]))
			switch info.Signo {
			case uint32(unix.SIGCHLD):
				sawSIGCHLD = true
			case uint32(unix.SIGTERM):
				sawSIGTERM = true
			}
		}
		if n < len(buf) {
			return sawSIGCHLD, sawSIGTERM, nil
		}
	}
}

// Close releases the signalfd.
func (s *SignalReceiver) Close() error { return unix.Close(s.fd) }

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	// unix.Sigset_t is a fixed-size array of 64-bit words; index math
	// mirrors the glibc sigaddset macro since golang.org/x/sys/unix
	// exposes the struct but not the helper.
	word := (uint(sig) - 1) / 64
	bit := uint64(1) << ((uint(sig) - 1) % 64)
	set.Val[word] |= bit
}
