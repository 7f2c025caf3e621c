// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package auditlog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandQuotesOnlyWhenNeeded(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, true)
	log.Command("mkdir", "-p", "/jails/a/bin", "a path with spaces", "")

	require.Equal(t, "mkdir -p /jails/a/bin 'a path with spaces' ''\n", buf.String())
}

func TestCommandEscapesEmbeddedSingleQuote(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, true)
	log.Command("echo", "it's here")

	require.Equal(t, `echo 'it'"'"'s here'`+"\n", buf.String())
}

func TestCommandAndNoteAreNoOpsWhenDisabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, false)
	log.Command("rm", "-rf", "/jails/a")
	log.Note("skipped %d entries", 3)

	require.Empty(t, buf.String())
}

func TestNilLogIsSafeToCall(t *testing.T) {
	t.Parallel()

	var log *Log
	log.Command("mkdir", "/jails/a")
	log.Note("whatever")
}

func TestNoteFormatsAndPrefixesWithHash(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, true)
	log.Note("hard-linked %d of %d files", 4, 10)

	require.Equal(t, "# hard-linked 4 of 10 files\n", buf.String())
}

func TestZeroValueLogDiscardsEverything(t *testing.T) {
	t.Parallel()

	var log Log
	log.Command("mkdir", "/jails/a")
	log.Note("note")
}
