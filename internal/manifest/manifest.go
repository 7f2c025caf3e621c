// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses the whitespace-tolerant, line-oriented jail
// manifest format.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
)

// Kind identifies which of the manifest entry kinds 
// an Entry represents.
type Kind int

const (
	KindCopy Kind = iota // default: mirror host path, follow symlinks
	KindCp               // copy regular files verbatim, never hard-link
	KindBind
	KindBindRO
	KindMount
)

// Entry is one populated PATH line of the manifest, with cursrc/curdst
// already resolved against the preceding DIR: context.
type Entry struct {
	Kind Kind
	Line int

	// Src is the absolute host source path.
	Src string
	// Dst is the absolute destination path inside the jail (relative
	// to JD, i.e. not yet joined with JD).
	Dst string

	// BindTag/BindFiles are set for bind/bind-ro entries that carry a
	// re-materialization tag and inline sub-manifest.
	BindTag   string
	BindFiles string

	// MountArgs holds the raw options string for `mount DST ARGS`
	// entries; MountFS is the requested filesystem name (tmpfs, proc,
	// ...).
	MountFS   string
	MountArgs string
}

// SyntaxError describes a manifest line that could not be parsed.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("manifest line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// MaxLineLength bounds a single manifest line; exceeding it is a
// fatal "too long" syntax error rather than a silent truncation.
// PATH_MAX on Linux is 4096.
const MaxLineLength = 4096

// Parse reads a manifest from r, resolving DIR: context lines and
// producing one Entry per PATH line, in file order.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, MaxLineLength+1), MaxLineLength+1)

	cursrc, curdst := "/", "/"
	var entries []Entry

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if len(raw) > MaxLineLength {
			return nil, &SyntaxError{Line: lineNo, Text: raw[:64] + "...", Msg: "too long"}
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			dir := strings.TrimSuffix(line, ":")
			cursrc = resolveDir(cursrc, dir)
			curdst = resolveDir(curdst, dir)
			continue
		}

		entry, err := parseLine(line, cursrc, curdst, lineNo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, &SyntaxError{Line: lineNo + 1, Msg: "too long"}
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

func resolveDir(cur, name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name) + "/"
	}
	return path.Clean(path.Join(cur, name)) + "/"
}

// parseLine parses a single `PATH [<- SRC] [FLAGS]` line.
func parseLine(line, cursrc, curdst string, lineNo int) (Entry, error) {
	rest := line
	var flagsGroup string
	if idx := strings.Index(rest, "["); idx >= 0 {
		end := strings.LastIndex(rest, "]")
		if end < idx {
			return Entry{}, &SyntaxError{Line: lineNo, Text: line, Msg: "unterminated flags group"}
		}
		flagsGroup = rest[idx+1 : end]
		rest = strings.TrimSpace(rest[:idx])
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Entry{}, &SyntaxError{Line: lineNo, Text: line, Msg: "empty path"}
	}
	pathField := strings.TrimSuffix(fields[0], "/")

	src := ""
	if len(fields) >= 3 && fields[1] == "<-" {
		src = fields[2]
	}

	dst := joinPath(curdst, pathField)
	if src == "" {
		src = joinPath(cursrc, pathField)
	} else if !strings.HasPrefix(src, "/") {
		src = joinPath(cursrc, src)
	}

	entry := Entry{Kind: KindCopy, Line: lineNo, Src: src, Dst: dst}

	for _, tok := range splitFlagTokens(flagsGroup) {
		switch {
		case tok == "cp":
			entry.Kind = KindCp
		case tok == "bind" || strings.HasPrefix(tok, "bind "):
			entry.Kind = KindBind
			fields := strings.Fields(tok)
			if len(fields) >= 2 {
				entry.BindTag = fields[1]
			}
			if len(fields) >= 3 {
				entry.BindFiles = strings.Join(fields[2:], " ")
			}
		case strings.HasPrefix(tok, "bind-ro"):
			entry.Kind = KindBindRO
			fields := strings.Fields(tok)
			if len(fields) >= 2 {
				entry.BindTag = fields[1]
			}
			if len(fields) >= 3 {
				entry.BindFiles = strings.Join(fields[2:], " ")
			}
		case strings.HasPrefix(tok, "mount"):
			entry.Kind = KindMount
			fields := strings.Fields(tok)
			if len(fields) < 2 {
				return Entry{}, &SyntaxError{Line: lineNo, Text: line, Msg: "mount requires a filesystem name"}
			}
			entry.MountFS = fields[1]
			if len(fields) > 2 {
				entry.MountArgs = strings.Join(fields[2:], " ")
			}
		default:
			return Entry{}, &SyntaxError{Line: lineNo, Text: line, Msg: fmt.Sprintf("unknown flag %q", tok)}
		}
	}

	return entry, nil
}

// splitFlagTokens splits a `[…]` flags group on semicolons only,
// keeping bind-ro/mount's trailing arguments attached to their verb
// (they may themselves contain spaces).
func splitFlagTokens(group string) []string {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil
	}
	var tokens []string
	for _, part := range strings.Split(group, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens = append(tokens, part)
	}
	if len(tokens) == 0 {
		tokens = []string{group}
	}
	return tokens
}

func joinPath(base, name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Clean(path.Join(base, name))
}
