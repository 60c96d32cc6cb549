// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package slicer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestName is the file written into every slice directory listing
// the slice's materialized relative paths, one per line, sorted.
const ManifestName = "artifact_manifest.txt"

// WriteManifest writes the manifest for a slice directory. Paths are
// sorted before writing so re-slicing identical input produces a
// byte-identical manifest regardless of directory walk order.
func WriteManifest(sliceDir string, relPaths []string) error {
	sorted := make([]string, len(relPaths))
	copy(sorted, relPaths)
	sort.Strings(sorted)

	var builder strings.Builder
	for _, relPath := range sorted {
		builder.WriteString(relPath)
		builder.WriteByte('\n')
	}

	path := filepath.Join(sliceDir, ManifestName)
	if err := os.WriteFile(path, []byte(builder.String()), 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest returns the sorted relative paths recorded in a slice
// directory's manifest.
func ReadManifest(sliceDir string) ([]string, error) {
	path := filepath.Join(sliceDir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var relPaths []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		relPaths = append(relPaths, line)
	}
	return relPaths, nil
}
