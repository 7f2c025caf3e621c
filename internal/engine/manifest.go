// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine wires the manifest, materializer, mount planner,
// policy, and jail launcher packages into the four operations
// cmd/pa-jail exposes: add, run, mv, and rm — mirroring the
// action-dispatch shape of the original's main().
package engine

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pa-jail/pajail/internal/manifest"
)

// ManifestSourceKind discriminates the two ways a manifest fragment
// can be supplied on the command line.
type ManifestSourceKind int

const (
	// ManifestFromFile names a -f/--manifest-file argument: a path to
	// read, or "-" for Stdin.
	ManifestFromFile ManifestSourceKind = iota
	// ManifestFromText names a -F/--manifest argument: literal
	// manifest text passed inline on the command line.
	ManifestFromText
)

// ManifestSource is one -f/-F occurrence, kept in the order the
// command line named it — this treats a run's manifest as the
// concatenation of every -f/-F argument in appearance order, not a
// merge, so later entries can override earlier ones by simply
// re-mentioning the same PATH.
type ManifestSource struct {
	Kind  ManifestSourceKind
	Value string
}

// loadManifests reads and parses every source in order, concatenating
// their entries into a single manifest.Parse-equivalent stream.
// Stdin is used for a ManifestFromFile source whose Value is "-".
func loadManifests(sources []ManifestSource, stdin io.Reader) ([]manifest.Entry, error) {
	var entries []manifest.Entry
	for _, src := range sources {
		var r io.Reader
		switch src.Kind {
		case ManifestFromText:
			r = strings.NewReader(src.Value)
		case ManifestFromFile:
			if src.Value == "-" {
				if stdin == nil {
					return nil, fmt.Errorf("manifest: stdin requested but unavailable")
				}
				r = stdin
			} else {
				f, err := os.Open(src.Value)
				if err != nil {
					return nil, fmt.Errorf("open manifest %s: %w", src.Value, err)
				}
				defer f.Close()
				r = f
			}
		}
		parsed, err := manifest.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", describeSource(src), err)
		}
		entries = append(entries, parsed...)
	}
	return entries, nil
}

func describeSource(src ManifestSource) string {
	if src.Kind == ManifestFromText {
		return "-F argument"
	}
	return src.Value
}
