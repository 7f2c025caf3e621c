// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// pa-jail materializes and runs isolated chroot jails from declarative
// manifests, for grading untrusted coursework submissions. It provides
// four subcommands: add (materialize a jail tree without running
// anything), run (materialize, then execute a command inside it under
// supervision), mv (relocate a jail), and rm (unmount and delete one).
package main
