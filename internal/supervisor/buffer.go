// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements the single-threaded, non-blocking
// event loop that multiplexes a jailed child's PTY against caller
// stdio, event-source subscribers, signals, and timeouts.
package supervisor

import "syscall"

// Buffer is a bounded, growable byte queue used for every unidirectional
// stream the event loop shuttles bytes through (caller-input to PTY,
// PTY to caller-stdout/subscribers). Unlike observe.RingBuffer, it is
// not safe for concurrent use — the whole premise of a single-threaded
// event loop is that exactly one goroutine ever touches a Buffer, so
// there is no mutex to pay for.
//
// Data occupies data[head:tail]; startOffset is the absolute stream
// offset of data[head]. ReadFD/WriteFD perform one non-blocking
// syscall each and translate EAGAIN into (0, nil) so callers never
// have to special-case it.
type Buffer struct {
	data        []byte
	head, tail  int
	startOffset uint64
	maxCap      int

	closedRead  bool
	closedWrite bool
	lastErrno   error
}

// NewBuffer allocates a Buffer with the given initial capacity that
// may grow (doubling) up to maxCap bytes.
func NewBuffer(initialCap, maxCap int) *Buffer {
	return &Buffer{data: make([]byte, 0, initialCap), maxCap: maxCap}
}

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int { return b.tail - b.head }

// Room reports how many additional bytes can be appended before the
// buffer reaches maxCap.
func (b *Buffer) Room() int { return b.maxCap - (b.tail - b.head) }

// StartOffset returns the absolute stream offset of the first
// unread byte.
func (b *Buffer) StartOffset() uint64 { return b.startOffset }

// EndOffset returns the absolute stream offset one past the last
// buffered byte.
func (b *Buffer) EndOffset() uint64 { return b.startOffset + uint64(b.tail-b.head) }

// SeedOffset sets the buffer's starting absolute offset before any
// bytes have been appended, used to align from_slave's offsets with
// lseek(STDOUT, 0, SEEK_CUR) when stdout is an append-mode file.
func (b *Buffer) SeedOffset(offset uint64) { b.startOffset = offset }

// ClosedForRead reports whether the fd this buffer reads from has hit EOF.
func (b *Buffer) ClosedForRead() bool { return b.closedRead }

// ClosedForWrite reports whether the fd this buffer writes to has closed.
func (b *Buffer) ClosedForWrite() bool { return b.closedWrite }

// LastErrno returns the most recent I/O error recorded against this
// buffer's fd, used to pick the right exit code in exit.go.
func (b *Buffer) LastErrno() error { return b.lastErrno }

// Append copies p into the buffer, compacting first if there isn't
// room, and growing (doubling, capped at maxCap) if compaction alone
// doesn't make room. Returns the number of bytes actually appended;
// fewer than len(p) means the buffer is full at maxCap.
func (b *Buffer) Append(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	b.compact()
	if b.availableTail() < len(p) && b.head > 0 {
		b.slide()
	}
	for b.availableTail() < len(p) && cap(b.data) < b.maxCap {
		b.grow()
	}
	n := len(p)
	if avail := b.availableTail(); n > avail {
		n = avail
	}
	b.data = b.data[:b.tail+n]
	copy(b.data[b.tail:b.tail+n], p[:n])
	b.tail += n
	return n
}

func (b *Buffer) availableTail() int { return cap(b.data) - b.tail }

// compact slides unread data to the front once the buffer is more
// than 75% consumed, reclaiming head space without growing the
// underlying array.
func (b *Buffer) compact() {
	if b.head == 0 {
		return
	}
	if cap(b.data) == 0 || b.head*4 <= cap(b.data)*3 {
		return
	}
	b.slide()
}

// slide moves the unread bytes to the front of the array. startOffset
// is unchanged: Consume has already advanced it past the dropped bytes.
func (b *Buffer) slide() {
	n := copy(b.data, b.data[b.head:b.tail])
	b.head = 0
	b.tail = n
	b.data = b.data[:n]
}

func (b *Buffer) grow() {
	newCap := cap(b.data) * 2
	if newCap == 0 {
		newCap = 4096
	}
	if newCap > b.maxCap {
		newCap = b.maxCap
	}
	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	b.data = grown
}

// Peek returns the unread bytes without consuming them.
func (b *Buffer) Peek() []byte { return b.data[b.head:b.tail] }

// Consume drops n unread bytes from the front, advancing startOffset.
func (b *Buffer) Consume(n int) {
	if n > b.tail-b.head {
		n = b.tail - b.head
	}
	b.head += n
	b.startOffset += uint64(n)
}

// ReadFD performs one non-blocking read from fd into the buffer's
// free space, recording EOF/errors as closedRead/lastErrno rather
// than returning them, so the event loop's per-fd handling stays
// uniform regardless of the source.
func (b *Buffer) ReadFD(fd int) (int, error) {
	b.compact()
	for b.availableTail() == 0 && cap(b.data) < b.maxCap {
		b.grow()
	}
	if b.availableTail() == 0 && b.head > 0 {
		b.slide()
	}
	if b.availableTail() == 0 {
		return 0, nil // buffer full; caller should stop polling POLLIN
	}
	n, err := syscall.Read(fd, b.data[b.tail:cap(b.data)])
	switch {
	case n > 0:
		b.data = b.data[:b.tail+n]
		b.tail += n
		return n, nil
	case err == syscall.EAGAIN || err == syscall.EWOULDBLOCK:
		return 0, nil
	case err == syscall.EINTR:
		return 0, nil
	case n == 0 && err == nil:
		b.closedRead = true
		return 0, nil
	default:
		b.closedRead = true
		b.lastErrno = err
		return 0, err
	}
}

// WriteFD performs one non-blocking write from the buffer's unread
// bytes to fd, consuming what was accepted.
func (b *Buffer) WriteFD(fd int) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	n, err := syscall.Write(fd, b.Peek())
	switch {
	case n > 0:
		b.Consume(n)
		return n, nil
	case err == syscall.EAGAIN || err == syscall.EWOULDBLOCK:
		return 0, nil
	case err == syscall.EINTR:
		return 0, nil
	case err == syscall.EPIPE || err == syscall.EIO:
		b.closedWrite = true
		b.lastErrno = err
		return 0, err
	default:
		b.closedWrite = true
		b.lastErrno = err
		return 0, err
	}
}
