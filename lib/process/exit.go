// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes err's message to stderr and exits with code. Callers
// are expected to have already wrapped err with "<path-or-cmd>:
// <reason>" context, so Fatal itself adds no extra prefix — unlike a
// generic "error: %v" wrapper, which would double up on that context.
func Fatal(err error, code int) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(code)
}
