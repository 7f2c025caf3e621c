// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWallClockDeadline(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(1000, 1000, "/home/student", "/bin/bash", now)
	require.True(t, s.WallClockDeadline().IsZero())

	s.Timeout = 30 * time.Second
	require.Equal(t, now.Add(30*time.Second), s.WallClockDeadline())
}

func TestIdleDeadlineTracksLastActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(1000, 1000, "/home/student", "/bin/bash", now)
	s.IdleTimeout = 5 * time.Second
	require.Equal(t, now.Add(5*time.Second), s.IdleDeadline())

	later := now.Add(2 * time.Second)
	s.Touch(later)
	require.Equal(t, later.Add(5*time.Second), s.IdleDeadline())
}

func TestExpandPIDContentsDefault(t *testing.T) {
	t.Parallel()

	s := New(1000, 1000, "/home/student", "/bin/bash", time.Now())
	s.Pid = 4242
	require.Equal(t, "4242", s.ExpandPIDContents(""))
}

func TestExpandPIDContentsTemplate(t *testing.T) {
	t.Parallel()

	s := New(1000, 1000, "/home/student", "/bin/bash", time.Now())
	s.Pid = 17
	require.Equal(t, "pid=17 running", s.ExpandPIDContents("pid=$$ running"))
}
