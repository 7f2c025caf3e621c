// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package jaillaunch

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pa-jail/pajail/internal/auditlog"
	"github.com/pa-jail/pajail/internal/mountplan"
)

// Launch spawns the jail entry sequence in a fresh mount/PID/IPC
// namespace and returns as soon as that reexec'd child has started,
// without waiting for its namespace and pivot_root setup or for the
// requested command; the caller waits on the returned pid. This
// mirrors the original's clone()+exec_go
// split — reimplemented as a self-reexec (see launcher.go's
// ReexecArg doc comment) since Go cannot safely run arbitrary code in
// a clone()d child before an exec.
func Launch(cfg Config, table *mountplan.Table, log *auditlog.Log, dryRun bool) (*Result, error) {
	self, err := reexecSelf()
	if err != nil {
		return nil, err
	}

	configPath, err := writeConfigFile(cfg, table, dryRun)
	if err != nil {
		return nil, err
	}
	defer os.Remove(configPath)

	log.Command("-clone-")

	cmd := exec.Command(self, ReexecArg, configPath)
	cmd.Stdin = os.Stdin
	if cfg.CallerInput != nil {
		cmd.Stdin = cfg.CallerInput
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWIPC | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID,
	}

	if dryRun {
		if err := Enter(configPath); err != nil {
			return nil, err
		}
		return &Result{Pid: os.Getpid()}, nil
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	return &Result{Pid: cmd.Process.Pid}, nil
}

// writeConfigFile serializes cfg (plus the host mount table the
// entered namespace needs to replay delayed mounts) to a private
// temporary file the reexec'd child reads and deletes-by-proxy (the
// parent removes it once the child has started, since the child has
// already opened/read it by then via O_RDONLY before namespace entry
// severs its view of the host filesystem).
func writeConfigFile(cfg Config, table *mountplan.Table, dryRun bool) (string, error) {
	f, err := os.CreateTemp("", "pa-jail-enter-*.json")
	if err != nil {
		return "", fmt.Errorf("create enter config: %w", err)
	}
	defer f.Close()

	payload := enterPayload{Config: cfg, DryRun: dryRun}
	if table != nil {
		payload.MountTableSnapshot = table.Snapshot()
	}
	if err := json.NewEncoder(f).Encode(payload); err != nil {
		return "", fmt.Errorf("write enter config: %w", err)
	}
	return f.Name(), nil
}

type enterPayload struct {
	Config             Config
	MountTableSnapshot []mountplan.SlotEntry
	DryRun             bool
}

// Enter runs entirely inside the freshly cloned namespaces: it is the
// body of the reexec'd child named by ReexecArg. It reads its
// configuration from configPath, replays delayed host mounts,
// pivots the root filesystem, drops to the jail owner's uid/gid
// (saving root for the PTY/home-directory setup that still needs it),
// allocates a PTY, and finally forks once more to permanently drop
// privileges and execve the requested command.
func Enter(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read enter config: %w", err)
	}
	var payload enterPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse enter config: %w", err)
	}
	cfg := payload.Config

	log := auditlog.New(os.Stderr, true)
	table := mountplan.NewTableFromSnapshot(payload.MountTableSnapshot)
	planner := mountplan.NewPlanner(table, log, payload.DryRun)
	planner.SetPhase(mountplan.PhaseInChild)

	if err := enterNamespace(cfg, planner, payload.DryRun, log); err != nil {
		return err
	}
	if err := pivotJailRoot(cfg.JailDir, payload.DryRun, log); err != nil {
		return err
	}
	if err := raisePrivileges(cfg.Owner, cfg.Group, payload.DryRun, log); err != nil {
		return err
	}

	var pty *ptyPair
	if !cfg.Foreground {
		pty, err = openPTY(cfg.WindowCols, cfg.WindowRows, cfg.DisableONLCR, payload.DryRun, log)
		if err != nil {
			return err
		}
	}

	if err := os.Chdir(cfg.OwnerHome); err != nil && !payload.DryRun {
		return fmt.Errorf("chdir %s: %w", cfg.OwnerHome, err)
	}
	log.Command("cd", cfg.OwnerHome)

	if err := unix.Access(cfg.OwnerShell, unix.R_OK|unix.X_OK); err != nil && !payload.DryRun {
		return fmt.Errorf("%s: %w", cfg.OwnerShell, err)
	}

	if cfg.ReadyMarker != "" && !payload.DryRun {
		fmt.Fprint(os.Stdout, cfg.ReadyMarker)
	}

	return forkExec(cfg, pty, payload.DryRun, log)
}

// enterNamespace reproduces exec_go's pre-pivot mount sequence: make
// the root mount slave-propagating (undoing distros that default /
// to a shared mount, which would otherwise leak namespace-local mount
// changes back to the host), then replay every delayed mount plus the
// always-needed /proc, /dev/pts, /tmp, /run.
func enterNamespace(cfg Config, planner *mountplan.Planner, dryRun bool, log *auditlog.Log) error {
	log.Command("mount", "--make-rslave", "/")
	if !dryRun {
		if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_SLAVE, ""); err != nil {
			return fmt.Errorf("mount --make-rslave /: %w", err)
		}
	}

	if err := planner.FlushDelayed(); err != nil {
		return err
	}
	jdir := cfg.JailDir
	for _, m := range [][2]string{
		{"/proc", jdir + "proc"},
		{"/dev/pts", jdir + "dev/pts"},
		{"/tmp", jdir + "tmp"},
		{"/run", jdir + "run"},
	} {
		if err := planner.Handle(m[0], m[1], true); err != nil {
			return err
		}
	}
	for _, req := range cfg.MountRequests {
		if err := planner.Handle(req.Src, req.Dst, true); err != nil {
			return err
		}
	}
	return nil
}

// pivotJailRoot bind-mounts jdir onto itself (pivot_root requires its
// target be a mount point) and swaps it in as the process's root,
// unmounting the old root once the new one is current, per the
// original's pivot_root sequence and grounded on
// _examples/other_examples/FreeChenMou-ai-sandbox__pivotroot.go's
// doPivotRoot.
func pivotJailRoot(jdir string, dryRun bool, log *auditlog.Log) error {
	parentMount := filepath.Join(jdir, "mnt", ".parent")
	if err := os.MkdirAll(parentMount, 0777); err != nil && !dryRun {
		return fmt.Errorf("mkdir %s: %w", parentMount, err)
	}

	log.Command("mount", "--bind", jdir, jdir)
	if !dryRun {
		if err := unix.Mount(jdir, jdir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("mount --bind %s: %w", jdir, err)
		}
	}

	log.Command("pivot_root", jdir, parentMount)
	if !dryRun {
		if err := unix.PivotRoot(jdir, parentMount); err != nil {
			return fmt.Errorf("pivot_root %s %s: %w", jdir, parentMount, err)
		}
	}

	log.Command("cd", "/")
	if !dryRun {
		if err := unix.Chdir("/"); err != nil {
			return fmt.Errorf("chdir /: %w", err)
		}
	}

	newParentMount := "/mnt/.parent"
	log.Command("umount", newParentMount)
	if !dryRun {
		if err := unix.Unmount(newParentMount, unix.MNT_DETACH); err != nil {
			return fmt.Errorf("umount %s: %w", newParentMount, err)
		}
	}
	return nil
}

// raisePrivileges switches the real and effective uid/gid to
// owner/group while keeping the saved ids at root, so later steps (PTY device
// ownership, a final chdir into the owner's home which may itself be
// root-owned-but-world-readable) still have a path back to root
// before the final, permanent drop in forkExec.
func raisePrivileges(owner, group int, dryRun bool, log *auditlog.Log) error {
	log.Note("su to owner, saving root")
	if dryRun {
		return nil
	}
	if err := unix.Setresgid(group, group, 0); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}
	if err := unix.Setresuid(owner, owner, 0); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}
	return nil
}
