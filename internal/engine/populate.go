// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/jaillaunch"
	"github.com/pa-jail/pajail/internal/materializer"
	"github.com/pa-jail/pajail/internal/mountplan"
)

// PopulateOptions bundles the inputs `add` and `run` share.
type PopulateOptions struct {
	Skeleton   string
	Manifests  []ManifestSource
	Stdin      io.Reader
	ChownHome  bool
	ChownUsers []string
	DryRun     bool
}

// Populate materializes every manifest source into jailDir in
// appearance order, then applies -h/--chown-home and -u/--chown-user,
// mirroring do_add's body (also the first half of do_run's). The
// returned MountRequests must be threaded onto a run's
// jaillaunch.Config so the reexec'd child can Handle them once it has
// entered the jail's own mount namespace — `add` has no such second
// stage and simply discards them, since a materialized-but-never-run
// jail has nothing to mount yet.
func Populate(jailDir string, opts PopulateOptions, owner jaillaunch.Identity, table *mountplan.Table, log *auditlog.Log) ([]jaillaunch.MountRequest, error) {
	entries, err := loadManifests(opts.Manifests, opts.Stdin)
	if err != nil {
		return nil, err
	}

	mat := materializer.New(jailDir, opts.Skeleton, log, opts.DryRun)
	planner := mountplan.NewPlanner(table, log, opts.DryRun)
	planner.SetPhase(mountplan.PhaseAdd)

	matRequests, err := mat.Run(entries, planner, 0)
	if err != nil {
		return nil, fmt.Errorf("populate %s: %w", jailDir, err)
	}

	if opts.ChownHome {
		if err := chownTree(filepath.Join(jailDir, owner.Home), owner.Uid, owner.Gid, opts.DryRun, log); err != nil {
			return nil, err
		}
	}
	for _, dir := range opts.ChownUsers {
		if err := chownTree(filepath.Join(jailDir, dir), owner.Uid, owner.Gid, opts.DryRun, log); err != nil {
			return nil, err
		}
	}

	requests := make([]jaillaunch.MountRequest, len(matRequests))
	for i, r := range matRequests {
		requests[i] = jaillaunch.MountRequest{Src: r.Src, Dst: r.Dst}
	}
	return requests, nil
}

// chownTree recursively chowns root to uid:gid, mirroring the
// original's chown_recursive helper behind -h/-u.
func chownTree(root string, uid, gid int, dryRun bool, log *auditlog.Log) error {
	log.Command("chown", "-R", fmt.Sprintf("%d:%d", uid, gid), root)
	if dryRun {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if lerr := os.Lchown(path, uid, gid); lerr != nil {
			return fmt.Errorf("chown %s: %w", path, lerr)
		}
		return nil
	})
}
