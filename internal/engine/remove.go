// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/mountplan"
	"github.com/pa-jail/pajail/internal/policy"
)

// Remove unmounts everything under jailDir and deletes the tree,
// mirroring do_rm: policy is re-checked (a jail directory that policy
// no longer allows still needs to be removable, so this only affects
// the diagnostic, not whether removal proceeds), every host mount
// point nested under jailDir is torn down deepest-first, and force
// causes a missing jailDir to be treated as already-removed rather
// than an error.
func Remove(oracle *policy.Oracle, jailDir string, force, dryRun bool, log *auditlog.Log) error {
	jailDir = strings.TrimSuffix(jailDir, "/") + "/"

	if _, err := os.Stat(jailDir); err != nil {
		if force && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("rm: %w", err)
	}

	if result := oracle.Query(policy.Jail, jailDir, false); !result.Allowed {
		log.Note("rm %s: policy no longer allows this jail (%s); removing anyway", jailDir, result.Reason)
	}

	if err := unmountUnder(jailDir, dryRun, log); err != nil {
		return err
	}

	log.Command("rm", "-rf", jailDir)
	if dryRun {
		return nil
	}
	if err := os.RemoveAll(jailDir); err != nil {
		return fmt.Errorf("rm %s: %w", jailDir, err)
	}
	return nil
}

// unmountUnder unmounts every host mount point nested under jailDir,
// in reverse lexical order, which puts every mount point ahead of any
// mount point it is nested under, so a bind mount's own bind mounts (e.g. a jail's
// /proc bound over a subtree that was itself bind-mounted) come free
// before their parent.
func unmountUnder(jailDir string, dryRun bool, log *auditlog.Log) error {
	table, err := mountplan.LoadProcMounts()
	if err != nil {
		return fmt.Errorf("rm: load host mount table: %w", err)
	}

	var nested []string
	for _, entry := range table.Snapshot() {
		if entry.MountPoint == jailDir || strings.HasPrefix(entry.MountPoint, jailDir) {
			nested = append(nested, entry.MountPoint)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(nested)))

	for _, mountPoint := range nested {
		log.Command("umount", mountPoint)
		if dryRun {
			continue
		}
		if err := unix.Unmount(mountPoint, unix.MNT_DETACH); err != nil && !errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("umount %s: %w", mountPoint, err)
		}
	}
	return nil
}
