// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndConsume(t *testing.T) {
	t.Parallel()

	b := NewBuffer(16, 64)
	n := b.Append([]byte("hello"))
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.Len())
	require.Equal(t, uint64(0), b.StartOffset())
	require.Equal(t, uint64(5), b.EndOffset())

	b.Consume(2)
	require.Equal(t, 3, b.Len())
	require.Equal(t, uint64(2), b.StartOffset())
	require.Equal(t, "llo", string(b.Peek()))
}

func TestBufferGrowsUpToMaxCap(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 16)
	n := b.Append([]byte("0123456789abcdef"))
	require.Equal(t, 16, n)
	require.Equal(t, 0, b.Room())

	n = b.Append([]byte("overflow"))
	require.Equal(t, 0, n)
}

func TestBufferCompactsPastThreeQuarters(t *testing.T) {
	t.Parallel()

	b := NewBuffer(8, 8)
	b.Append([]byte("01234567"))
	b.Consume(7)
	require.Equal(t, 1, b.Len())

	n := b.Append([]byte("abcdefg"))
	require.Equal(t, 7, n)
	require.Equal(t, "7abcdefg", string(b.Peek()))
}

func TestBufferSeedOffset(t *testing.T) {
	t.Parallel()

	b := NewBuffer(16, 16)
	b.SeedOffset(1000)
	b.Append([]byte("hi"))
	require.Equal(t, uint64(1000), b.StartOffset())
	require.Equal(t, uint64(1002), b.EndOffset())
}

func TestBufferReadFDNonBlocking(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, setNonblock(r))

	b := NewBuffer(64, 64)
	n, err := b.ReadFD(int(r.Fd()))
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.False(t, b.ClosedForRead())

	_, err = w.Write([]byte("data"))
	require.NoError(t, err)

	n, err = b.ReadFD(int(r.Fd()))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "data", string(b.Peek()))
}

func TestBufferReadFDDetectsEOF(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, setNonblock(r))
	require.NoError(t, w.Close())

	b := NewBuffer(64, 64)
	n, err := b.ReadFD(int(r.Fd()))
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.True(t, b.ClosedForRead())
}

func TestBufferWriteFDConsumes(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, setNonblock(w))

	b := NewBuffer(64, 64)
	b.Append([]byte("payload"))
	n, err := b.WriteFD(int(w.Fd()))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, 0, b.Len())
}
