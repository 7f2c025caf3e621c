// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "strings"

// matchSegment implements shell-glob matching for a single path
// component: '/' never matches through a wildcard, and a leading '.'
// in the candidate is not matched by '*' or '?' unless the pattern's
// corresponding position is itself a literal '.'. This is the same
// contract path/filepath.Match documents for filepath.Match, applied
// here to whole normalised paths one rune at a time so the "leading
// dot" rule is enforced at the start of every path segment, not just
// the start of the whole string.
func matchSegment(pattern, name string) bool {
	return matchRunes([]rune(pattern), []rune(name), true)
}

func matchRunes(pattern, name []rune, atSegmentStart bool) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive '*'.
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			// '*' never matches a leading dot, so when the segment
			// starts with '.' the only viable split point is i == 0
			// (match nothing here, defer to the rest of the pattern).
			limit := len(name)
			if atSegmentStart && len(name) > 0 && name[0] == '.' {
				limit = 0
			}
			for i := 0; i <= limit; i++ {
				if matchRunes(pattern[1:], name[i:], false) {
					return true
				}
				if i < len(name) && name[i] == '/' {
					break
				}
			}
			return false
		case '?':
			if len(name) == 0 || name[0] == '/' {
				return false
			}
			if atSegmentStart && name[0] == '.' {
				return false
			}
			pattern, name = pattern[1:], name[1:]
			atSegmentStart = false
		case '[':
			end := indexRune(pattern[1:], ']')
			if end < 0 {
				// Unterminated class: treat '[' as literal.
				if len(name) == 0 || name[0] != '[' {
					return false
				}
				pattern, name = pattern[1:], name[1:]
				atSegmentStart = false
				continue
			}
			class := pattern[1 : 1+end]
			if len(name) == 0 || name[0] == '/' {
				return false
			}
			if atSegmentStart && name[0] == '.' {
				return false
			}
			if !matchClass(class, name[0]) {
				return false
			}
			pattern = pattern[1+end+1:]
			name = name[1:]
			atSegmentStart = false
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			// Match/MatchPrefix split on '/' before calling in, so a
			// segment never contains '/'; the leading-dot rule only
			// ever applies at position 0.
			pattern, name = pattern[1:], name[1:]
			atSegmentStart = false
		}
	}
	return len(name) == 0
}

func indexRune(rs []rune, target rune) int {
	for i, r := range rs {
		if r == target {
			return i
		}
	}
	return -1
}

func matchClass(class []rune, c rune) bool {
	negate := false
	if len(class) > 0 && (class[0] == '!' || class[0] == '^') {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				matched = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			matched = true
		}
	}
	return matched != negate
}

// Match reports whether pattern matches path using shell-glob
// semantics, split on '/' so a wildcard never crosses a path
// separator and a leading '.' in any segment is not matched by a bare
// wildcard. Both pattern and path are expected to be absolute
// (leading '/'), as this requires for policy rule arguments.
func Match(pattern, path string) bool {
	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	nSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(pSegs) != len(nSegs) {
		return false
	}
	for i := range pSegs {
		if !matchSegment(pSegs[i], nSegs[i]) {
			return false
		}
	}
	return true
}

// MatchPrefix reports whether pattern and path agree up to the
// shorter of the two's segment count: it truncates whichever of
// pattern or path has more segments down to the other's length before
// matching, so a short deny pattern still covers a deeper path (an
// ancestor-of-path match) and a longer allow pattern still covers a
// shallower ancestor being walked toward it (a prefix-of-pattern
// match). Used for superdir queries and for deny/global rules.
func MatchPrefix(pattern, path string) bool {
	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	nSegs := strings.Split(strings.Trim(path, "/"), "/")
	n := len(nSegs)
	if len(pSegs) < n {
		n = len(pSegs)
	}
	return Match(strings.Join(pSegs[:n], "/"), strings.Join(nSegs[:n], "/"))
}
