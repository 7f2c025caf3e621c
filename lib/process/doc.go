// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the pa-jail binary's top-level error
// handler: printing a final error and exiting with the matching exit
// code. This centralizes the one place main() ever calls os.Exit with
// a non-zero code for a synchronously detected error (as opposed to a
// supervised run's own exit code, which simply becomes the process's
// return value from run()).
package process
