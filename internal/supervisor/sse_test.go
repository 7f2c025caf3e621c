// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatDataEventBasic(t *testing.T) {
	t.Parallel()

	got := FormatDataEvent(0, 6, []byte("hello\n"))
	require.Equal(t, `data:{"offset":0,"data":"hello\n","end_offset":6}`+"\nid:6\n\n", got)
}

func TestFormatDataEventEscapesControlAndQuotes(t *testing.T) {
	t.Parallel()

	got := FormatDataEvent(0, 4, []byte("a\"\\\x01"))
	require.Contains(t, got, `\"`)
	require.Contains(t, got, `\\`)
	require.Contains(t, got, `\u0001`)
}

func TestFormatDataEventReplacesNulAndInvalidUTF8(t *testing.T) {
	t.Parallel()

	got := FormatDataEvent(0, 3, []byte{0x00, 0xff, 'x'})
	require.Contains(t, got, string([]byte{0x7F, 0x7F, 'x'}))
}

func TestFormatDataEventPassesThroughValidUTF8(t *testing.T) {
	t.Parallel()

	got := FormatDataEvent(0, 3, []byte("héllo"[:3]))
	require.Contains(t, got, "hé")
}

func TestFormatDoneEvent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "data:{\"done\":true}\n\n", FormatDoneEvent())
}
