// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/policy"
)

// Move renames source to dest, re-checking policy against dest before
// touching the filesystem, mirroring do_mv: if dest already exists and
// is a directory, the destination becomes dest/basename(source), the
// same way `mv a b/` behaves when b/ exists.
func Move(oracle *policy.Oracle, source, dest string, dryRun bool, log *auditlog.Log) error {
	source = strings.TrimSuffix(source, "/")
	dest = strings.TrimSuffix(dest, "/")

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, filepath.Base(source))
	}

	result := oracle.Query(policy.Jail, dest, false)
	if !result.Allowed {
		return fmt.Errorf("mv: %s not permitted: %s", dest, result.Reason)
	}

	log.Command("mv", source, dest)
	if dryRun {
		return nil
	}
	if err := os.Rename(source, dest); err != nil {
		return fmt.Errorf("mv %s %s: %w", source, dest, err)
	}
	return nil
}
