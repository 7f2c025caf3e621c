// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/lib/clock"
)

func TestContainsEscKill(t *testing.T) {
	t.Parallel()

	require.True(t, containsEscKill([]byte{0x1b, 0x03}))
	require.True(t, containsEscKill([]byte("hello\x1b\x03")))
	require.False(t, containsEscKill([]byte("hello")))
	require.False(t, containsEscKill([]byte{0x03, 0x1b}))
}

func TestComputeExitCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		reason exitReason
		code   int
		exit   int
	}{
		{reasonChildExited, 7, 7},
		{reasonTimeout, 0, ExitTimeout},
		{reasonSIGTERM, 0, ExitForTermination()},
		{reasonEscapeKill, 0, ExitForTermination()},
		{reasonPTYError, 0, ExitIOError},
	}
	for _, tc := range cases {
		l := &Loop{exitReason: tc.reason, exitCode: tc.code}
		require.Equal(t, tc.exit, l.computeExitCode())
	}
}

func TestLoopShuttlesPipeToPipe(t *testing.T) {
	t.Parallel()

	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	defer inR.Close()
	defer inW.Close()
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer outR.Close()
	defer outW.Close()
	ptyR, ptyW, err := os.Pipe()
	require.NoError(t, err)
	defer ptyR.Close()
	defer ptyW.Close()

	require.NoError(t, unix.SetNonblock(int(inR.Fd()), true))
	require.NoError(t, unix.SetNonblock(int(outW.Fd()), true))
	require.NoError(t, unix.SetNonblock(int(ptyR.Fd()), true))
	require.NoError(t, unix.SetNonblock(int(ptyW.Fd()), true))

	l := NewLoop(Config{
		CallerInputFD:  -1,
		CallerOutputFD: int(outW.Fd()),
		PTYMasterFD:    int(ptyR.Fd()),
		ChildPid:       -1,
		StartedAt:      time.Now(),
	})

	_, err = ptyW.Write([]byte("hello from pty"))
	require.NoError(t, err)

	// First iteration reads PTY output into from_slave (the poll set
	// for writes is built from state at the top of the iteration, so
	// the freshly read bytes are not flushed to stdout until the next
	// pass — matching the "reads before writes within one iteration"
	// contract this loop shares with a fresh iteration's poll set).
	l.iteration(false)
	l.iteration(false)

	buf := make([]byte, 64)
	n, err := outR.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello from pty", string(buf[:n]))
}

func TestPollTimeoutMsHonorsWallClockDeadline(t *testing.T) {
	t.Parallel()

	l := NewLoop(Config{
		CallerInputFD:  -1,
		CallerOutputFD: -1,
		PTYMasterFD:    -1,
		StartedAt:      time.Now().Add(-59 * time.Second),
		Timeout:        60 * time.Second,
	})
	ms := l.pollTimeoutMs()
	require.LessOrEqual(t, ms, 1000)
	require.GreaterOrEqual(t, ms, 0)
}

func TestCheckExitConditionsTimeout(t *testing.T) {
	t.Parallel()

	l := NewLoop(Config{
		CallerInputFD:  -1,
		CallerOutputFD: -1,
		PTYMasterFD:    -1,
		StartedAt:      time.Now().Add(-time.Minute),
		Timeout:        time.Second,
	})
	l.checkExitConditions()
	require.Equal(t, reasonTimeout, l.exitReason)
	require.Equal(t, ExitTimeout, l.computeExitCode())
}

func TestCheckExitConditionsTimeoutWithFakeClock(t *testing.T) {
	t.Parallel()

	fc := clock.Fake(time.Unix(1000, 0))
	l := NewLoop(Config{
		CallerInputFD:  -1,
		CallerOutputFD: -1,
		PTYMasterFD:    -1,
		StartedAt:      fc.Now(),
		Timeout:        30 * time.Second,
		Clock:          fc,
	})

	l.checkExitConditions()
	require.Equal(t, reasonNone, l.exitReason)

	fc.Advance(29 * time.Second)
	l.checkExitConditions()
	require.Equal(t, reasonNone, l.exitReason)

	fc.Advance(2 * time.Second)
	l.checkExitConditions()
	require.Equal(t, reasonTimeout, l.exitReason)
	require.Equal(t, ExitTimeout, l.computeExitCode())
}

func TestCheckExitConditionsIdleTimeoutWithFakeClock(t *testing.T) {
	t.Parallel()

	fc := clock.Fake(time.Unix(2000, 0))
	l := NewLoop(Config{
		CallerInputFD:  -1,
		CallerOutputFD: -1,
		PTYMasterFD:    -1,
		StartedAt:      fc.Now(),
		IdleTimeout:    10 * time.Second,
		Clock:          fc,
	})
	l.touch()

	fc.Advance(5 * time.Second)
	l.touch()
	l.checkExitConditions()
	require.Equal(t, reasonNone, l.exitReason)

	fc.Advance(11 * time.Second)
	l.checkExitConditions()
	require.Equal(t, reasonTimeout, l.exitReason)
}

func TestCheckExitConditionsChildExitedAndDrained(t *testing.T) {
	t.Parallel()

	l := NewLoop(Config{CallerInputFD: -1, CallerOutputFD: -1, PTYMasterFD: -1, StartedAt: time.Now()})
	l.childReaped = true
	l.fromSlave.closedRead = true
	l.checkExitConditions()
	require.Equal(t, reasonChildExited, l.exitReason)
}
