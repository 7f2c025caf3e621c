// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOracleGlobalDenyOverridesLocalAllow(t *testing.T) {
	t.Parallel()

	o, err := Parse(strings.NewReader(`
disablejail
enablejail /jails/*
`), "test.conf")
	require.NoError(t, err)

	result := o.Query(Jail, "/jails/a", false)
	require.False(t, result.Allowed, "global disable must force locally_allowed to 0")
}

func TestOracleAllowsMatchingPattern(t *testing.T) {
	t.Parallel()

	o, err := Parse(strings.NewReader(`
enablejail /jails/ok*
`), "test.conf")
	require.NoError(t, err)

	allowed := o.Query(Jail, "/jails/okay", false)
	require.True(t, allowed.Allowed)

	denied := o.Query(Jail, "/jails/bad/x", false)
	require.False(t, denied.Allowed)
	require.Contains(t, denied.Reason, "no rule allows")
}

func TestOracleSkeletonIsIndependentOfJail(t *testing.T) {
	t.Parallel()

	o, err := Parse(strings.NewReader(`
enablejail /jails/*
enableskeleton /skel/*
`), "test.conf")
	require.NoError(t, err)

	require.True(t, o.Query(Jail, "/jails/a", false).Allowed)
	require.False(t, o.Query(Skeleton, "/jails/a", false).Allowed)
	require.True(t, o.Query(Skeleton, "/skel/shared", false).Allowed)
}

func TestOracleTreeDirFromAllowPattern(t *testing.T) {
	t.Parallel()

	o, err := Parse(strings.NewReader(`
enablejail /srv/jails/*/work
`), "test.conf")
	require.NoError(t, err)

	result := o.Query(Jail, "/srv/jails/student1/work", false)
	require.True(t, result.Allowed)
	require.Equal(t, "/srv/jails", result.TreeRoot)
}

func TestOracleSuperdirRelaxesToPrefixMatch(t *testing.T) {
	t.Parallel()

	o, err := Parse(strings.NewReader(`
enablejail /jails/a/b
`), "test.conf")
	require.NoError(t, err)

	// Exact-match only for a direct (non-superdir) allow query.
	require.False(t, o.Query(Jail, "/jails/a", false).Allowed)
	// Superdir queries (used while walking ancestors) accept a
	// prefix-of-descendant match.
	require.True(t, o.Query(Jail, "/jails/a", true).Allowed)
}

func TestMatchLeadingDotNotMatchedByWildcard(t *testing.T) {
	t.Parallel()

	require.False(t, Match("/jails/*", "/jails/.hidden"))
	require.True(t, Match("/jails/.*", "/jails/.hidden"))
	require.True(t, Match("/jails/*", "/jails/visible"))
}

func TestMatchWildcardNeverCrossesSeparator(t *testing.T) {
	t.Parallel()

	require.False(t, Match("/jails/*", "/jails/a/b"))
	require.True(t, Match("/jails/*/b", "/jails/a/b"))
}
