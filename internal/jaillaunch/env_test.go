// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package jaillaunch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEnvDefaults(t *testing.T) {
	clearEnv(t, "PATH", "LANG", "TERM", "LD_LIBRARY_PATH")

	env := BuildEnv("/home/student", nil)
	require.Contains(t, env, defaultPath)
	require.Contains(t, env, defaultLang)
	require.Contains(t, env, "HOME=/home/student")
}

func TestBuildEnvPassesThroughHostVars(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("LD_LIBRARY_PATH", "/opt/lib")

	env := BuildEnv("/home/student", nil)
	require.Contains(t, env, "PATH=/usr/bin")
	require.Contains(t, env, "TERM=xterm-256color")
	require.Contains(t, env, "LD_LIBRARY_PATH=/opt/lib")
}

func TestBuildEnvExtraOverridesAndAppends(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")

	env := BuildEnv("/home/student", []string{"PATH=/opt/course/bin", "COURSE_ID=cs101"})
	require.Contains(t, env, "PATH=/opt/course/bin")
	require.Contains(t, env, "COURSE_ID=cs101")
	require.NotContains(t, env, "PATH=/usr/bin")
}

func TestBuildEnvExtraStopsAtFirstNonAssignment(t *testing.T) {
	t.Parallel()

	env := BuildEnv("/home/student", []string{"COURSE_ID=cs101", "/bin/bash", "IGNORED=1"})
	require.Contains(t, env, "COURSE_ID=cs101")
	require.NotContains(t, env, "IGNORED=1")
}

// clearEnv unsets the given variables for the duration of t, restoring
// their prior values (or absence) once t completes. Not safe to combine
// with t.Parallel: os.Setenv/Unsetenv is process-global.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		val, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, val)
			}
		})
	}
}

func TestIsValidEnvAssignment(t *testing.T) {
	t.Parallel()

	require.True(t, isValidEnvAssignment("FOO=bar"))
	require.True(t, isValidEnvAssignment("FOO_BAR=1"))
	require.False(t, isValidEnvAssignment("=bar"))
	require.False(t, isValidEnvAssignment("FOO"))
	require.False(t, isValidEnvAssignment("FOO-BAR=1"))
}
