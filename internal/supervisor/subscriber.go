// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"net"
	"syscall"
)

var errNotSyscallConn = errors.New("supervisor: connection does not expose a raw fd")

// connFD extracts the raw file descriptor backing conn, needed
// because the event loop drives sockets directly through poll(2)
// rather than through net's own blocking Read/Write.
func connFD(conn syscall.Conn) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if ctrlErr := rc.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// Subscriber is one event-source client: a UNIX-socket HTTP
// connection to which the event loop streams SSE-framed output
// events. Each subscriber owns its send buffer and its own
// output offset so a slow client falls behind independently of
// every other client and of the PTY's own from_slave buffer.
//
// Grounded on observe/relay.go's per-connection I/O loop, collapsed
// from a pair of goroutines (one per direction) into plain buffered
// state the single-threaded loop drives directly: no shared mutable
// state crosses an fd boundary; buffers are owned by a single agent.
type Subscriber struct {
	conn      net.Conn
	fd        int
	sendBuf   *Buffer
	outputOff uint64
	handshake bool
}

// DefaultSubscriberBufferSize bounds a single subscriber's backlog.
// Once full, further output events are dropped for that subscriber
// rather than blocking the rest of the loop — a slow observer never
// throttles the child.
const DefaultSubscriberBufferSize = 64 * 1024

// NewSubscriber wraps an accepted event-source connection, seeding
// its output offset to fromSlaveOffset so it receives events for
// from_slave bytes from that offset on. Bytes that were already
// written out of from_slave before it connected are not resent.
func NewSubscriber(conn net.Conn, fromSlaveOffset uint64) (*Subscriber, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, errNotSyscallConn
	}
	fd, err := connFD(sc)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		conn:      conn,
		fd:        fd,
		sendBuf:   NewBuffer(4096, DefaultSubscriberBufferSize),
		outputOff: fromSlaveOffset,
	}, nil
}

// FD returns the subscriber connection's underlying file descriptor
// for use in the poll set.
func (s *Subscriber) FD() int { return s.fd }

// QueueHandshake enqueues the fixed SSE response headers if they have
// not already been sent.
func (s *Subscriber) QueueHandshake() {
	if s.handshake {
		return
	}
	s.handshake = true
	s.sendBuf.Append([]byte(sseHandshake))
}

// QueueChunk frames [start,end) of chunk as one SSE data event and
// appends it to the subscriber's send buffer, advancing outputOff.
// If the subscriber's buffer has no room, the chunk is silently
// dropped for this subscriber (see DefaultSubscriberBufferSize).
func (s *Subscriber) QueueChunk(start, end uint64, chunk []byte) {
	event := FormatDataEvent(start, end, chunk)
	if s.sendBuf.Room() < len(event) {
		return
	}
	s.sendBuf.Append([]byte(event))
	s.outputOff = end
}

// QueueDone enqueues the closing `data:{"done":true}` event.
func (s *Subscriber) QueueDone() {
	event := []byte(FormatDoneEvent())
	if s.sendBuf.Room() < len(event) {
		return
	}
	s.sendBuf.Append(event)
}

// Flush performs one non-blocking write of buffered bytes to the
// subscriber connection.
func (s *Subscriber) Flush() (int, error) {
	return s.sendBuf.WriteFD(s.fd)
}

// Pending reports whether the subscriber has buffered bytes still to
// send, so the poll set only arms POLLOUT for subscribers with
// something to write.
func (s *Subscriber) Pending() bool { return s.sendBuf.Len() > 0 }

// Closed reports whether the subscriber's connection has closed its
// write side; a closed subscriber is dropped from the poll set.
func (s *Subscriber) Closed() bool { return s.sendBuf.ClosedForWrite() }

// Close releases the subscriber's connection.
func (s *Subscriber) Close() error { return s.conn.Close() }
