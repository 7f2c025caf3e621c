// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountplan tracks the host's mount table and decides which
// mounts a jail needs re-created inside it, and when.
package mountplan

import (
	"strings"

	"golang.org/x/sys/unix"
)

// mountArg names one comma-separated mount(8) option word and the
// MS_* flag it sets, mirroring the original's `mountargs` table. A
// zero Flag means the option only affects string presentation (e.g.
// "rw" clears MS_RDONLY rather than setting a flag of its own).
type mountArg struct {
	name string
	flag uintptr
}

var mountArgs = []mountArg{
	{"ro", unix.MS_RDONLY},
	{"rw", 0},
	{"nosuid", unix.MS_NOSUID},
	{"nodev", unix.MS_NODEV},
	{"noexec", unix.MS_NOEXEC},
	{"sync", unix.MS_SYNCHRONOUS},
	{"remount", unix.MS_REMOUNT},
	{"mand", unix.MS_MANDLOCK},
	{"dirsync", unix.MS_DIRSYNC},
	{"noatime", unix.MS_NOATIME},
	{"nodiratime", unix.MS_NODIRATIME},
	{"bind", unix.MS_BIND},
	{"rbind", unix.MS_BIND | unix.MS_REC},
	{"move", unix.MS_MOVE},
	{"silent", unix.MS_SILENT},
	{"relatime", unix.MS_RELATIME},
	{"strictatime", unix.MS_STRICTATIME},
	{"unbindable", unix.MS_UNBINDABLE},
	{"private", unix.MS_PRIVATE},
	{"slave", unix.MS_SLAVE},
	{"shared", unix.MS_SHARED},
}

func findMountArg(name string) (mountArg, bool) {
	for _, ma := range mountArgs {
		if ma.name == name {
			return ma, true
		}
	}
	return mountArg{}, false
}

// MountSlot is one entry of the host mount table (or a manifest-driven
// mount request): a filesystem source, type, MS_* flag bitmask, and
// any leftover filesystem-specific data (e.g. "size=64m" for tmpfs),
// per the original's `mountslot`.
type MountSlot struct {
	Source string
	Type   string
	Flags  uintptr
	Data   string
	// Wanted marks a manifest-driven `[bind]`/`[bind-ro]`/`[mount]`
	// entry, distinguishing it from a passively observed host mount
	// (the original's `wanted` field).
	Wanted bool
}

// NewMountSlot parses a comma-separated mount option string (as found
// in /proc/mounts or a manifest's `[mount FS ARGS]` clause) into flags
// and leftover filesystem-specific data.
func NewMountSlot(source, fsType, opts string) MountSlot {
	ms := MountSlot{Source: source, Type: fsType}
	var data []string
	for _, opt := range strings.Split(opts, ",") {
		if opt == "" {
			continue
		}
		key := opt
		if idx := strings.IndexByte(opt, '='); idx >= 0 {
			key = opt[:idx]
		}
		if ma, ok := findMountArg(key); ok {
			ms.Flags |= ma.flag
		} else {
			data = append(data, opt)
		}
	}
	ms.Data = strings.Join(data, ",")
	return ms
}

// AddOption folds one more mount option into ms, either setting/
// clearing a flag or appending to Data — replacing any existing Data
// entry with the same key, mirroring mountslot::add_mountopt.
func (ms *MountSlot) AddOption(opt string) {
	key := opt
	if idx := strings.IndexByte(opt, '='); idx >= 0 {
		key = opt[:idx]
	}
	if ma, ok := findMountArg(key); ok {
		if ma.flag != 0 {
			ms.Flags |= ma.flag
		} else {
			ms.Flags &^= unix.MS_RDONLY
		}
		return
	}
	var kept []string
	for _, p := range strings.Split(ms.Data, ",") {
		if p == "" {
			continue
		}
		pkey := p
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			pkey = p[:idx]
		}
		if pkey != key {
			kept = append(kept, p)
		}
	}
	kept = append(kept, opt)
	ms.Data = strings.Join(kept, ",")
}

// Equal reports whether two slots describe the same mount for the
// purposes of handle_mount's "already mounted" short-circuit.
func (ms MountSlot) Equal(other MountSlot) bool {
	return ms.Source == other.Source && ms.Type == other.Type &&
		ms.Flags == other.Flags && ms.Data == other.Data
}
