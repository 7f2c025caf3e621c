// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/lib/clock"
)

const (
	toSlaveCap    = 4096
	fromSlaveCap  = 8 * 1024
	subscriberCap = 30 * time.Second
	idleCap       = time.Hour
)

// escKillSequence is the caller-input escape that requests an
// immediate kill of the tracked child: ESC Ctrl-C.
var escKillSequence = []byte{0x1b, 0x03}

// Config wires the fds and deadlines a Loop drives; everything here
// is already open and non-blocking by the time NewLoop is called.
type Config struct {
	// CallerInputFD is stdin or the -i/--input fd; -1 disables it.
	CallerInputFD int
	// CallerOutputFD is stdout.
	CallerOutputFD int
	// PTYMasterFD is the jailed child's controlling terminal master.
	PTYMasterFD int
	// ChildPid is the tracked child to reap.
	ChildPid int

	Signals *SignalReceiver

	// EventSourceListenFD, when >= 0, is polled for new subscriber
	// connections.
	EventSourceListenFD int
	Accept              func() (*Subscriber, error)

	Timing *TimingWriter

	StartedAt             time.Time
	Timeout, IdleTimeout  time.Duration
	FromSlaveSeededOffset uint64

	// Clock abstracts every time.Now/time.Sleep call the loop makes, so
	// tests can drive deadlines deterministically instead of racing a
	// wall clock. Nil means clock.Real().
	Clock clock.Clock
}

// Loop is the single-threaded, non-blocking event loop that
// implements Supervisor. One Loop drives one Child
// session end to end.
type Loop struct {
	cfg Config

	toSlave   *Buffer
	fromSlave *Buffer

	subscribers []*Subscriber

	lastActive time.Time

	sigterm     bool
	childReaped bool
	exitCode    int
	exitReason  exitReason

	iterationCount int
}

type exitReason int

const (
	reasonNone exitReason = iota
	reasonChildExited
	reasonTimeout
	reasonSIGTERM
	reasonPTYError
	reasonEscapeKill
)

// NewLoop constructs a Loop ready to Run.
func NewLoop(cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	l := &Loop{
		cfg:        cfg,
		toSlave:    NewBuffer(toSlaveCap, toSlaveCap),
		fromSlave:  NewBuffer(fromSlaveCap, fromSlaveCap),
		lastActive: cfg.StartedAt,
	}
	l.fromSlave.SeedOffset(cfg.FromSlaveSeededOffset)
	return l
}

// Run drives the loop until an exit condition fires, returning the
// process exit code.
func (l *Loop) Run() int {
	// A first non-blocking poll (timeout 0) runs before the blocking
	// one, to opportunistically drain without arming the timing flag.
	l.iteration(false)

	for l.exitReason == reasonNone {
		blocked := l.iteration(true)
		if blocked && l.cfg.Timing != nil {
			elapsed := l.cfg.Clock.Now().Sub(l.cfg.StartedAt).Milliseconds()
			l.cfg.Timing.Record(elapsed, int64(l.fromSlave.StartOffset()))
		}
	}

	l.drainSubscribersOnExit()
	return l.computeExitCode()
}

// iteration runs one pass of the loop: poll, drain signals, accept
// subscribers, shuttle bytes (reads before writes), fan out to
// subscribers, update the idle deadline. Returns whether the poll
// call actually blocked (waited > 0ms) rather than returning
// immediately with ready fds.
func (l *Loop) iteration(allowBlock bool) bool {
	timeout := 0
	if allowBlock {
		timeout = l.pollTimeoutMs()
	}

	entries, index := l.buildPollSet()
	n, err := unix.Poll(entries, timeout)
	blocked := allowBlock && timeout > 0
	if err != nil && err != unix.EINTR {
		return blocked
	}
	_ = n

	l.drainSignals(entries, index)
	l.acceptSubscribers(entries, index)
	l.shuttleReads(entries, index)
	l.shuttleWrites(entries, index)
	l.fanOutToSubscribers()
	l.reapChild()
	l.pruneClosedSubscribers()
	l.checkExitConditions()

	return blocked
}

type pollIndex struct {
	signal, input, ptyMaster, stdout, listener int
	subscriberStart                            int
}

func (l *Loop) buildPollSet() ([]unix.PollFd, pollIndex) {
	var entries []unix.PollFd
	idx := pollIndex{signal: -1, input: -1, ptyMaster: -1, stdout: -1, listener: -1}

	if l.cfg.Signals != nil {
		idx.signal = len(entries)
		entries = append(entries, unix.PollFd{Fd: int32(l.cfg.Signals.FD()), Events: unix.POLLIN})
	}
	if l.cfg.CallerInputFD >= 0 && l.toSlave.Room() > 0 && !l.toSlave.ClosedForRead() {
		idx.input = len(entries)
		entries = append(entries, unix.PollFd{Fd: int32(l.cfg.CallerInputFD), Events: unix.POLLIN})
	}
	if l.cfg.PTYMasterFD >= 0 {
		var events int16
		if l.fromSlave.Room() > 0 {
			events |= unix.POLLIN
		}
		if l.toSlave.Len() > 0 {
			events |= unix.POLLOUT
		}
		if events != 0 {
			idx.ptyMaster = len(entries)
			entries = append(entries, unix.PollFd{Fd: int32(l.cfg.PTYMasterFD), Events: events})
		}
	}
	if l.cfg.CallerOutputFD >= 0 && l.fromSlave.Len() > 0 {
		idx.stdout = len(entries)
		entries = append(entries, unix.PollFd{Fd: int32(l.cfg.CallerOutputFD), Events: unix.POLLOUT})
	}
	if l.cfg.EventSourceListenFD >= 0 {
		idx.listener = len(entries)
		entries = append(entries, unix.PollFd{Fd: int32(l.cfg.EventSourceListenFD), Events: unix.POLLIN})
	}
	idx.subscriberStart = len(entries)
	for _, sub := range l.subscribers {
		var events int16
		if sub.Pending() {
			events |= unix.POLLOUT
		}
		entries = append(entries, unix.PollFd{Fd: int32(sub.FD()), Events: events})
	}
	return entries, idx
}

// pollTimeoutMs is the minimum of the wall-clock/idle deadlines, a
// 30-second cap when subscribers exist, or 1 hour otherwise.
func (l *Loop) pollTimeoutMs() int {
	window := idleCap
	if len(l.subscribers) > 0 {
		window = subscriberCap
	}
	deadline := l.cfg.Clock.Now().Add(window)

	if l.cfg.Timeout > 0 {
		if wall := l.cfg.StartedAt.Add(l.cfg.Timeout); wall.Before(deadline) {
			deadline = wall
		}
	}
	if l.cfg.IdleTimeout > 0 {
		if idle := l.lastActive.Add(l.cfg.IdleTimeout); idle.Before(deadline) {
			deadline = idle
		}
	}

	ms := int(deadline.Sub(l.cfg.Clock.Now()).Milliseconds())
	if ms < 0 {
		ms = 0
	}
	return ms
}

func (l *Loop) drainSignals(entries []unix.PollFd, idx pollIndex) {
	if idx.signal < 0 || entries[idx.signal].Revents == 0 || l.cfg.Signals == nil {
		return
	}
	_, sawTerm, err := l.cfg.Signals.Drain()
	if err == nil && sawTerm {
		l.sigterm = true
	}
}

func (l *Loop) acceptSubscribers(entries []unix.PollFd, idx pollIndex) {
	if idx.listener < 0 || entries[idx.listener].Revents == 0 || l.cfg.Accept == nil {
		return
	}
	for {
		sub, err := l.cfg.Accept()
		if err != nil || sub == nil {
			return
		}
		sub.QueueHandshake()
		l.subscribers = append(l.subscribers, sub)
	}
}

func (l *Loop) shuttleReads(entries []unix.PollFd, idx pollIndex) {
	if idx.input >= 0 && entries[idx.input].Revents&unix.POLLIN != 0 {
		n, _ := l.toSlave.ReadFD(l.cfg.CallerInputFD)
		if n > 0 {
			l.touch()
			if containsEscKill(l.toSlave.Peek()) {
				l.exitReason = reasonEscapeKill
			}
		}
	}
	if idx.ptyMaster >= 0 && entries[idx.ptyMaster].Revents&unix.POLLIN != 0 {
		n, _ := l.fromSlave.ReadFD(l.cfg.PTYMasterFD)
		if n > 0 {
			l.touch()
		}
		if l.fromSlave.ClosedForRead() && l.fromSlave.LastErrno() != nil {
			l.exitReason = reasonPTYError
		}
	}
}

func (l *Loop) shuttleWrites(entries []unix.PollFd, idx pollIndex) {
	if idx.ptyMaster >= 0 && entries[idx.ptyMaster].Revents&unix.POLLOUT != 0 {
		n, _ := l.toSlave.WriteFD(l.cfg.PTYMasterFD)
		if n > 0 {
			l.touch()
		}
	}
	if idx.stdout >= 0 && entries[idx.stdout].Revents&unix.POLLOUT != 0 {
		n, _ := l.fromSlave.WriteFD(l.cfg.CallerOutputFD)
		if n > 0 {
			l.touch()
		}
	}
	for i, sub := range l.subscribers {
		if idx.subscriberStart+i >= len(entries) {
			break
		}
		if entries[idx.subscriberStart+i].Revents&unix.POLLOUT != 0 {
			sub.Flush()
		}
	}
}

// fanOutToSubscribers frames whatever from_slave gained this
// iteration into an SSE event and queues it for every live
// subscriber at its own output offset.
func (l *Loop) fanOutToSubscribers() {
	if len(l.subscribers) == 0 {
		return
	}
	end := l.fromSlave.EndOffset()
	full := l.fromSlave.Peek()
	fullStart := l.fromSlave.StartOffset()
	for _, sub := range l.subscribers {
		if sub.outputOff >= end {
			continue
		}
		if sub.outputOff < fullStart {
			sub.outputOff = fullStart
		}
		chunk := full[sub.outputOff-fullStart:]
		if len(chunk) == 0 {
			continue
		}
		sub.QueueChunk(sub.outputOff, end, chunk)
	}
}

func (l *Loop) pruneClosedSubscribers() {
	live := l.subscribers[:0]
	for _, sub := range l.subscribers {
		if sub.Closed() {
			sub.Close()
			continue
		}
		live = append(live, sub)
	}
	l.subscribers = live
}

func (l *Loop) reapChild() {
	if l.childReaped {
		return
	}
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if pid != l.cfg.ChildPid {
			continue
		}
		l.childReaped = true
		switch {
		case status.Exited():
			l.exitCode = status.ExitStatus()
		case status.Signaled():
			l.exitCode = ExitForSignal(status.Signal())
		}
		return
	}
}

func (l *Loop) checkExitConditions() {
	if l.exitReason != reasonNone {
		return
	}
	if l.sigterm {
		l.exitReason = reasonSIGTERM
		return
	}
	if l.childReaped && l.fromSlave.Len() == 0 && l.fromSlave.ClosedForRead() {
		l.exitReason = reasonChildExited
		return
	}
	if l.cfg.Timeout > 0 && l.cfg.Clock.Now().After(l.cfg.StartedAt.Add(l.cfg.Timeout)) {
		l.exitReason = reasonTimeout
		return
	}
	if l.cfg.IdleTimeout > 0 && l.cfg.Clock.Now().After(l.lastActive.Add(l.cfg.IdleTimeout)) {
		l.exitReason = reasonTimeout
	}
}

func (l *Loop) touch() { l.lastActive = l.cfg.Clock.Now() }

func containsEscKill(buf []byte) bool {
	return bytes.Contains(buf, escKillSequence)
}

// drainSubscribersOnExit sends the final done event to every
// subscriber and gives them a bounded window to receive it before
// the process exits.
func (l *Loop) drainSubscribersOnExit() {
	for _, sub := range l.subscribers {
		sub.QueueDone()
	}
	deadline := l.cfg.Clock.Now().Add(5 * time.Second)
	for l.cfg.Clock.Now().Before(deadline) {
		anyPending := false
		for _, sub := range l.subscribers {
			if sub.Pending() {
				anyPending = true
				sub.Flush()
			}
		}
		if !anyPending {
			break
		}
		l.cfg.Clock.Sleep(10 * time.Millisecond)
	}
	for _, sub := range l.subscribers {
		sub.Close()
	}
}

// ExitReason describes why Run returned, for a caller that wants to
// print a human-readable banner rather than just an exit code.
func (l *Loop) ExitReason() string {
	switch l.exitReason {
	case reasonChildExited:
		if l.exitCode == ExitSuccess {
			return "exited"
		}
		return fmt.Sprintf("exited with status %d", l.exitCode)
	case reasonTimeout:
		return "timed out"
	case reasonSIGTERM:
		return "terminated"
	case reasonEscapeKill:
		return "killed by escape sequence"
	case reasonPTYError:
		return "pty error"
	default:
		return "unknown"
	}
}

func (l *Loop) computeExitCode() int {
	switch l.exitReason {
	case reasonChildExited:
		return l.exitCode
	case reasonTimeout:
		return ExitTimeout
	case reasonSIGTERM, reasonEscapeKill:
		return ExitForTermination()
	case reasonPTYError:
		return ExitIOError
	default:
		return ExitSuccess
	}
}
