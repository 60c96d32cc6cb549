// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package slicer partitions a built component's install tree into
// artifact slices.
//
// Given an install root and a slicing descriptor, every file matched
// by a component's rules is materialized (hard-linked where possible,
// copied otherwise) into that component's output directory,
// preserving relative path and permissions. Each output directory
// gets a sorted manifest of everything materialized into it.
//
// Files matched by no component rule are deliberately left
// unpackaged: not every installed file ships. Descriptor components
// with no requested output directory are ignored, so old descriptors
// keep working when a build stops requesting a component.
package slicer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quarry-build/quarry/lib/descriptor"
)

// Hook is a post-processing extension point run against a slice's
// materialized directory before archiving (e.g. an external SONAME or
// RPATH patcher). A hook failure fails that slice.
type Hook func(sliceDir string) error

// Result reports what a Slice call materialized.
type Result struct {
	// Manifests maps each requested component to the sorted relative
	// paths materialized into its output directory.
	Manifests map[string][]string
}

// Slice partitions the install tree at rootDir according to the
// descriptor. outputs maps slice component names to their output
// directories; only listed components are materialized.
//
// Failures are per-component: an error in one component does not
// abort the others, and the returned error joins everything that
// failed. Re-running with an identical tree and descriptor yields
// identical manifests (copy timestamps may differ — skip decisions
// belong to fingerprints, never mtimes).
func Slice(rootDir string, desc *descriptor.Descriptor, outputs map[string]string) (*Result, error) {
	relPaths, err := walkInstallTree(rootDir)
	if err != nil {
		return nil, &SliceFileError{Path: rootDir, Err: err}
	}

	result := &Result{Manifests: make(map[string][]string, len(outputs))}
	var failures []error

	for component, outputDir := range outputs {
		manifest, err := sliceComponent(rootDir, desc, component, outputDir, relPaths)
		if err != nil {
			failures = append(failures, fmt.Errorf("slicing component %q: %w", component, err))
			continue
		}
		result.Manifests[component] = manifest
	}

	return result, errors.Join(failures...)
}

// sliceComponent materializes one component's matching files and
// writes its manifest. A component matching zero files still gets an
// (empty) manifest: an intentionally empty slice is a valid state.
func sliceComponent(rootDir string, desc *descriptor.Descriptor, component, outputDir string, relPaths []string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &SliceFileError{Path: outputDir, Err: err}
	}

	var manifest []string
	for _, relPath := range relPaths {
		if !desc.Matches(component, relPath) {
			continue
		}
		source := filepath.Join(rootDir, filepath.FromSlash(relPath))
		destination := filepath.Join(outputDir, filepath.FromSlash(relPath))
		if err := materialize(source, destination); err != nil {
			return nil, &SliceFileError{Path: relPath, Err: err}
		}
		manifest = append(manifest, relPath)
	}

	if err := WriteManifest(outputDir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// walkInstallTree returns the forward-slash relative paths of every
// file and symlink under rootDir, in walk order (sorting happens at
// manifest-write time).
func walkInstallTree(rootDir string) ([]string, error) {
	var relPaths []string
	err := filepath.WalkDir(rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, filepath.ToSlash(relPath))
		return nil
	})
	return relPaths, err
}

// materialize places source at destination: symlinks are re-created,
// regular files are hard-linked when the filesystem allows and copied
// otherwise. Permissions carry over in both cases (hard links share
// the inode; copies restat).
func materialize(source, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return err
	}

	info, err := os.Lstat(source)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := os.Readlink(source)
		if err != nil {
			return err
		}
		if err := os.Remove(destination); err != nil && !os.IsNotExist(err) {
			return err
		}
		return os.Symlink(linkTarget, destination)
	}

	if err := os.Remove(destination); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(source, destination); err == nil {
		return nil
	}
	return copyFile(source, destination, info.Mode().Perm())
}

func copyFile(source, destination string, perm os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SliceFileError reports a filesystem failure while materializing a
// slice. Carries the offending path so one bad file in a
// multi-hundred-component build is findable.
type SliceFileError struct {
	Path string
	Err  error
}

func (e *SliceFileError) Error() string {
	return fmt.Sprintf("slice file %s: %v", e.Path, e.Err)
}

func (e *SliceFileError) Unwrap() error { return e.Err }

// Class returns the error taxonomy name printed by the CLI.
func (e *SliceFileError) Class() string { return "SlicingError" }
