// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package materializer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/manifest"
	"github.com/pa-jail/pajail/internal/mountplan"
)

// maxBindTagDepth bounds the bind-tag re-materialization recursion
// depth, as a hard stop against a manifest that references itself,
// directly or through a cycle of tags.
const maxBindTagDepth = 8

// bindTagMarker is the literal marker file name checked and rewritten
// at the root of a bind source carrying a re-materialization tag.
const bindTagMarker = ".pa-jail-bindtag"

// MountRequest is one bind/mount manifest entry Run recorded with
// planner, paired with the jail-absolute destination the caller must
// later hand to Planner.Handle once construction reaches the phase
// that entry can actually be mounted at.
type MountRequest struct {
	// Src is the Planner table key: the host source path for a bind
	// entry, or the destination path itself (there being no host
	// source) for a manifest `[mount FS ARGS]` entry.
	Src string
	// Dst is the jail-absolute mount point.
	Dst string
}

// Run walks entries in file order, materializing copy/cp entries
// in-process via Copy and recording bind/bind-ro/mount entries with
// planner rather than performing them immediately — those mounts only
// make sense once the launcher has actually entered the jail's own
// mount and PID namespaces. The returned requests are the (src, dst)
// pairs the caller must Handle once that phase is reached.
//
// planner may be nil, in which case bind/mount entries are parsed and
// bind-tagged sources re-materialized but no MountRequest is ever
// recorded — used by the recursive call that re-populates a bind
// source, which has no mount table of its own to register against.
func (m *Materializer) Run(entries []manifest.Entry, planner *mountplan.Planner, depth int) ([]MountRequest, error) {
	if depth > maxBindTagDepth {
		return nil, fmt.Errorf("materializer: bind-tag recursion exceeded depth %d", maxBindTagDepth)
	}

	var requests []MountRequest
	hook := m.mountPromotionHook(planner, &requests)

	for _, e := range entries {
		switch e.Kind {
		case manifest.KindCopy:
			if err := m.Copy(e.Src, e.Dst, true, hook); err != nil {
				return nil, fmt.Errorf("%s: %w", e.Dst, err)
			}
		case manifest.KindCp:
			if err := m.Copy(e.Src, e.Dst, false, hook); err != nil {
				return nil, fmt.Errorf("%s: %w", e.Dst, err)
			}
		case manifest.KindBind, manifest.KindBindRO:
			if e.BindTag != "" {
				if err := m.rematerializeBindTag(e, depth); err != nil {
					return nil, fmt.Errorf("bind tag %s: %w", e.BindTag, err)
				}
			}
			if planner != nil {
				flags := uintptr(unix.MS_BIND | unix.MS_REC)
				if e.Kind == manifest.KindBindRO {
					flags |= unix.MS_RDONLY
				}
				slot := mountplan.MountSlot{Source: e.Src, Type: "none", Flags: flags}
				planner.Want(e.Src, slot)
				requests = append(requests, MountRequest{Src: e.Src, Dst: m.Root + e.Dst})
			}
		case manifest.KindMount:
			if planner != nil {
				slot := mountplan.NewMountSlot(e.MountFS, e.MountFS, e.MountArgs)
				planner.Want(e.Dst, slot)
				requests = append(requests, MountRequest{Src: e.Dst, Dst: m.Root + e.Dst})
			}
		}
	}
	return requests, nil
}

// mountPromotionHook lets a plain copy/cp entry whose source directory
// is itself a host mount point become a bind mount of that filesystem
// rather than a recursive file-by-file copy of its (possibly huge or
// device-backed) contents, mirroring the original's descent stopping
// at mount boundaries. A nil planner disables promotion.
func (m *Materializer) mountPromotionHook(planner *mountplan.Planner, requests *[]MountRequest) func(hostDir, jailDir string) error {
	if planner == nil {
		return nil
	}
	return func(hostDir, jailDir string) error {
		slot, ok := planner.Table.Lookup(hostDir)
		if !ok {
			return nil
		}
		planner.Want(hostDir, slot)
		*requests = append(*requests, MountRequest{Src: hostDir, Dst: jailDir})
		return nil
	}
}

// rematerializeBindTag implements "Bind-tag re-materialization":
// e.Src's marker file is compared against e.BindTag, and on mismatch
// e.BindFiles — one or more host manifest file paths, whitespace
// separated — is read, concatenated, and materialized with e.Src
// itself as the destination root, before the marker is rewritten.
func (m *Materializer) rematerializeBindTag(e manifest.Entry, depth int) error {
	markerPath := filepath.Join(e.Src, bindTagMarker)
	existing, _ := os.ReadFile(markerPath)
	if strings.TrimSpace(string(existing)) == e.BindTag {
		return nil
	}

	var sub []manifest.Entry
	for _, manifestPath := range strings.Fields(e.BindFiles) {
		f, err := os.Open(manifestPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", manifestPath, err)
		}
		entries, err := manifest.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", manifestPath, err)
		}
		sub = append(sub, entries...)
	}

	subMat := New(e.Src, "", m.Log, m.DryRun)
	if _, err := subMat.Run(sub, nil, depth+1); err != nil {
		return err
	}

	m.Log.Command("write-bindtag", markerPath, e.BindTag)
	if m.DryRun {
		return nil
	}
	if err := os.WriteFile(markerPath, []byte(e.BindTag+"\n"), 0600); err != nil {
		return fmt.Errorf("write %s: %w", markerPath, err)
	}
	return nil
}
