// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// EventSourceListener accepts event-source subscriber connections on
// the socket named by --event-source SOCK, binding a pathname socket
// with permissions restricted to 0700 via umask.
//
// A leading '@' in the socket path requests Linux's abstract
// namespace (no filesystem entry, no permission bits — the umask
// requirement only binds pathname sockets); anything else is bound as
// an ordinary pathname socket with a restrictive umask so no other
// local user can connect.
type EventSourceListener struct {
	ln *net.UnixListener
	fd int
}

// ListenEventSource creates and binds the event-source listening
// socket at path.
func ListenEventSource(path string) (*EventSourceListener, error) {
	addr := path
	if len(path) > 0 && path[0] == '@' {
		addr = "@" + path[1:]
	}

	oldUmask := unix.Umask(0o077)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: addr, Net: "unix"})
	unix.Umask(oldUmask)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}

	fd, err := connFD(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		ln.Close()
		return nil, err
	}

	return &EventSourceListener{ln: ln, fd: fd}, nil
}

// FD returns the listener's fd for the poll set.
func (l *EventSourceListener) FD() int { return l.fd }

// Accept accepts one pending connection, wrapping it as a Subscriber
// seeded to fromSlaveOffset. Returns (nil, nil) if EAGAIN, matching
// the non-blocking-everything discipline of the event loop.
func (l *EventSourceListener) Accept(fromSlaveOffset uint64) (*Subscriber, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		if isEAGAIN(err) {
			return nil, nil
		}
		return nil, err
	}
	sub, err := NewSubscriber(conn, fromSlaveOffset)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := unix.SetNonblock(sub.fd, true); err != nil {
		conn.Close()
		return nil, err
	}
	return sub, nil
}

func isEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Close releases the listener.
func (l *EventSourceListener) Close() error { return l.ln.Close() }

// AcceptFD implements session.EventSourceListener without pulling
// internal/supervisor into internal/session's import graph — session
// only needs an fd it can hand back to the poll loop for reads it
// doesn't itself perform.
func (l *EventSourceListener) AcceptFD() (int, error) {
	sub, err := l.Accept(0)
	if err != nil || sub == nil {
		return -1, err
	}
	return sub.fd, nil
}
