// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"io"
)

// TimingWriter appends one line per blocking event-loop iteration to
// an underlying sink, alternating absolute and delta records: the
// first record and every 128th thereafter are absolute
// ("<elapsed_ms>,<stdout_bytes_total>\n"); every other record is a
// delta from the prior one ("+<Δms>,+<Δbytes>\n").
// Deltas are never negative — an elapsed/bytes value smaller than the
// previous call's is clamped to a zero delta rather than emitting a
// negative one.
type TimingWriter struct {
	w              io.Writer
	count          int
	lastElapsedMs  int64
	lastBytesTotal int64
}

// NewTimingWriter wraps w (typically the file opened for -t/--timing-file).
func NewTimingWriter(w io.Writer) *TimingWriter {
	return &TimingWriter{w: w}
}

// absoluteEvery matches the original's period between absolute
// records, keeping the file self-correcting against any single
// corrupted or dropped line without growing unbounded delta drift.
const absoluteEvery = 128

// Record appends one timing line for elapsedMs/bytesTotal, both
// cumulative since the run started.
func (t *TimingWriter) Record(elapsedMs, bytesTotal int64) error {
	var err error
	if t.count%absoluteEvery == 0 {
		_, err = fmt.Fprintf(t.w, "%d,%d\n", elapsedMs, bytesTotal)
	} else {
		deltaMs := elapsedMs - t.lastElapsedMs
		if deltaMs < 0 {
			deltaMs = 0
		}
		deltaBytes := bytesTotal - t.lastBytesTotal
		if deltaBytes < 0 {
			deltaBytes = 0
		}
		_, err = fmt.Fprintf(t.w, "+%d,+%d\n", deltaMs, deltaBytes)
	}
	t.count++
	t.lastElapsedMs = elapsedMs
	t.lastBytesTotal = bytesTotal
	return err
}
