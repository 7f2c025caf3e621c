// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}
