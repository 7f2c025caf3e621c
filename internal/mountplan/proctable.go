// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package mountplan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a snapshot of the host mount table keyed by mount point,
// mirroring the original's `mount_table` (populated once per process
// by populate_mount_table from /proc/mounts).
type Table struct {
	byMountPoint map[string]MountSlot
}

// LoadProcMounts reads /proc/mounts and builds a Table, decoding the
// octal-escaped whitespace and backslashes /proc/mounts uses for
// fields that may themselves contain spaces (fstab(5) field
// encoding).
func LoadProcMounts() (*Table, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("open /proc/mounts: %w", err)
	}
	defer f.Close()
	return ParseProcMounts(f)
}

// ParseProcMounts parses r in /proc/mounts / mtab format.
func ParseProcMounts(r io.Reader) (*Table, error) {
	t := &Table{byMountPoint: make(map[string]MountSlot)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("/proc/mounts:%d: expected at least 4 fields, got %d", lineNo, len(fields))
		}
		source := unescapeMtab(fields[0])
		mountPoint := unescapeMtab(fields[1])
		fsType := unescapeMtab(fields[2])
		opts := unescapeMtab(fields[3])
		t.byMountPoint[mountPoint] = NewMountSlot(source, fsType, opts)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read /proc/mounts: %w", err)
	}
	return t, nil
}

// unescapeMtab decodes the \NNN octal escapes /proc/mounts uses for
// spaces, tabs, newlines, and backslashes embedded in a field.
func unescapeMtab(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctalDigit(s[i+1]) && isOctalDigit(s[i+2]) && isOctalDigit(s[i+3]) {
			v := (s[i+1]-'0')*64 + (s[i+2]-'0')*8 + (s[i+3] - '0')
			b.WriteByte(v)
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

// Lookup returns the MountSlot observed at mountPoint, if any.
func (t *Table) Lookup(mountPoint string) (MountSlot, bool) {
	ms, ok := t.byMountPoint[mountPoint]
	return ms, ok
}

// Set records or overwrites the slot observed/wanted at mountPoint.
func (t *Table) Set(mountPoint string, ms MountSlot) {
	t.byMountPoint[mountPoint] = ms
}

// Delete forgets mountPoint, mirroring handle_umount's table cleanup.
func (t *Table) Delete(mountPoint string) {
	delete(t.byMountPoint, mountPoint)
}

// SlotEntry pairs a mount point with its slot, for transporting a
// Table's contents across process boundaries (the jail launcher's
// clone()d child inherits no host state other than what its parent
// hands it explicitly, unlike the original's shared-address-space
// clone()).
type SlotEntry struct {
	MountPoint string
	Slot       MountSlot
}

// Snapshot returns every entry of t, in no particular order.
func (t *Table) Snapshot() []SlotEntry {
	entries := make([]SlotEntry, 0, len(t.byMountPoint))
	for mp, slot := range t.byMountPoint {
		entries = append(entries, SlotEntry{MountPoint: mp, Slot: slot})
	}
	return entries
}

// NewTableFromSnapshot rebuilds a Table from Snapshot's output.
func NewTableFromSnapshot(entries []SlotEntry) *Table {
	t := &Table{byMountPoint: make(map[string]MountSlot, len(entries))}
	for _, e := range entries {
		t.byMountPoint[e.MountPoint] = e.Slot
	}
	return t
}
