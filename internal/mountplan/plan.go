// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package mountplan

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/auditlog"
)

// Phase names the three points in a jail's construction at which
// mount decisions differ, mirroring the original's `mount_status`:
// mounts requested while still outside any namespace are recorded but
// deferred, and only actually attempted once inside the new mount
// namespace.
type Phase int

const (
	// PhaseAdd is normal manifest-processing time, outside any
	// namespace: [bind]/[mount] entries are recorded as Wanted but
	// their host-visible mounts are not (re)created yet.
	PhaseAdd Phase = iota
	// PhasePreFork is the moment just before the jail process forks
	// into its own mount namespace: proc/devpts/tmpfs-at-/tmp mounts
	// are skipped, and sysfs-at-/sys, udev-at-/dev and Wanted slots are
	// queued as delayed for FlushDelayed to replay.
	PhasePreFork
	// PhaseInChild is after pivot_root, inside the jail's own mount
	// namespace: every delayed and manifest-driven mount is finally
	// created.
	PhaseInChild
)

// Planner tracks the host mount table plus the manifest's mount
// requests and decides, for a given (source, destination, phase)
// triple, whether a mount should happen now, later, or never — the
// state machine in the original's mountslot::mountable / handle_mount.
type Planner struct {
	Table *Table
	Log   *auditlog.Log
	// DryRun, when true, records decisions but issues no mount(2)
	// syscalls.
	DryRun bool

	phase   Phase
	delayed []delayedMount
	tried   map[string]bool
}

type delayedMount struct {
	src, dst string
}

// NewPlanner creates a Planner over an already-populated host mount
// Table.
func NewPlanner(table *Table, log *auditlog.Log, dryRun bool) *Planner {
	return &Planner{Table: table, Log: log, DryRun: dryRun, tried: make(map[string]bool)}
}

// SetPhase advances the planner to a new construction phase.
func (p *Planner) SetPhase(phase Phase) {
	p.phase = phase
}

// Want records a manifest-driven bind/bind-ro/mount request for src,
// so that a later Handle(src, dst, ...) call treats it as always
// mountable rather than merely host-observed.
func (p *Planner) Want(src string, slot MountSlot) {
	slot.Wanted = true
	p.Table.Set(src, slot)
}

// mountable decides whether src's recorded slot should actually be
// mounted at dst right now, replicating mountslot::mountable's special
// cases for proc, devpts, /tmp, and /run, and its delayed-mount queue
// for sysfs-at-/sys, udev-at-/dev and Wanted slots requested during
// PhasePreFork. Any other slot is not mounted.
func (p *Planner) mountable(src, dst string, slot MountSlot) bool {
	switch {
	case src == "/proc" && slot.Type == "proc":
		return p.phase == PhaseInChild
	case src == "/dev/pts" && slot.Type == "devpts":
		return p.phase == PhaseInChild
	case src == "/tmp" && slot.Type == "tmpfs":
		return p.phase != PhasePreFork
	case src == "/run" && slot.Type == "tmpfs":
		return false
	case (src == "/sys" && slot.Type == "sysfs") || (src == "/dev" && slot.Type == "udev") || slot.Wanted:
		if p.phase == PhasePreFork {
			p.delayed = append(p.delayed, delayedMount{src, dst})
			return false
		}
		return true
	default:
		return false
	}
}

// Handle decides and, unless dry-run, performs the mount for src at
// dst, mirroring handle_mount. inChild additionally requests the
// devpts newinstance/ptmxmode options and the private->slave bind
// remount that only make sense once inside the jail's own mount
// namespace.
func (p *Planner) Handle(src, dst string, inChild bool) error {
	slot, ok := p.Table.Lookup(src)
	if !ok || !p.mountable(src, dst, slot) {
		return nil
	}

	if existing, ok := p.Table.Lookup(dst); ok && existing.Equal(slot) && !inChild {
		return nil
	}

	if p.tried[dst] {
		return nil
	}
	p.tried[dst] = true

	if inChild {
		p.Log.Command("mkdir", "-p", "-m", "0555", dst)
		if !p.DryRun {
			if err := ensureDir(dst); err != nil {
				return err
			}
		}
	}

	work := slot
	if work.Type == "devpts" && inChild {
		work.AddOption("newinstance")
		work.AddOption("ptmxmode=0666")
	}
	if work.Flags&unix.MS_BIND != 0 && inChild {
		work.AddOption("slave")
	}

	err := p.mount(dst, work)
	if errors.Is(err, unix.EBUSY) && inChild {
		remount := work
		remount.Flags |= unix.MS_REMOUNT
		err = p.mount(dst, remount)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", mountCommand(dst, work), err)
	}
	if work.Flags&unix.MS_BIND != 0 {
		remount := work
		remount.Flags |= unix.MS_REMOUNT
		if err := p.mount(dst, remount); err != nil {
			return fmt.Errorf("%s: %w", mountCommand(dst, remount), err)
		}
	}
	return nil
}

// FlushDelayed replays every mount deferred during PhasePreFork,
// intended to be called once the planner has moved to PhaseInChild.
func (p *Planner) FlushDelayed() error {
	pending := p.delayed
	p.delayed = nil
	for _, d := range pending {
		if err := p.Handle(d.src, d.dst, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) mount(dst string, slot MountSlot) error {
	p.Log.Command(mountArgv(dst, slot)...)
	if p.DryRun {
		return nil
	}
	return unix.Mount(slot.Source, dst, slot.Type, uintptr(slot.Flags), slot.Data)
}

func mountArgv(dst string, slot MountSlot) []string {
	argv := []string{"mount", "-i", "-n", "-t", slot.Type}
	if opts := mountOptsArg(slot); opts != "" {
		argv = append(argv, "-o", opts)
	}
	return append(argv, slot.Source, dst)
}

func mountOptsArg(slot MountSlot) string {
	var opts string
	if slot.Flags&unix.MS_RDONLY == 0 {
		opts = "rw"
	}
	for _, ma := range mountArgs {
		if ma.flag != 0 && slot.Flags&ma.flag == ma.flag && ma.name != "rbind" {
			if opts != "" {
				opts += ","
			}
			opts += ma.name
		}
	}
	if slot.Data != "" {
		if opts != "" {
			opts += ","
		}
		opts += slot.Data
	}
	return opts
}

func mountCommand(dst string, slot MountSlot) string {
	argv := mountArgv(dst, slot)
	s := ""
	for i, a := range argv {
		if i > 0 {
			s += " "
		}
		s += a
	}
	return s
}

func ensureDir(dst string) error {
	if err := os.MkdirAll(dst, 0555); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	return nil
}
