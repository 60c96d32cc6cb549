// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package compose flattens selected artifact slices into one
// coherent installable distribution tree.
//
// Each slice's manifest says exactly what to copy — the directory is
// never re-scanned, so stray files in a slice directory can't leak
// into a distribution. Two slices writing the same relative path is
// tolerated only when their content is identical; divergent content
// at the same path means the packaging boundaries are wrong, and
// that is always fatal.
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quarry-build/quarry/lib/binhash"
	"github.com/quarry-build/quarry/lib/slicer"
)

// SliceRef identifies a materialized slice selected for composition.
type SliceRef struct {
	// Name identifies the slice in collision diagnostics
	// (conventionally "<artifact>_<component>_<family>").
	Name string

	// Dir is the slice's materialized directory, containing its
	// manifest.
	Dir string
}

// Compose flattens the selected slices into distDir. Files are
// copied in slice order; a later slice may overwrite an earlier one
// only with byte-identical content (checked by digest, never by
// size or mtime).
func Compose(slices []SliceRef, distDir string) error {
	if err := os.MkdirAll(distDir, 0755); err != nil {
		return fmt.Errorf("creating distribution directory %s: %w", distDir, err)
	}

	// claimedBy maps each written relative path to the slice that
	// wrote it and its content digest.
	type claim struct {
		slice  string
		digest [32]byte
	}
	claimedBy := make(map[string]claim)

	for _, slice := range slices {
		relPaths, err := slicer.ReadManifest(slice.Dir)
		if err != nil {
			return fmt.Errorf("slice %q: %w", slice.Name, err)
		}

		for _, relPath := range relPaths {
			source := filepath.Join(slice.Dir, filepath.FromSlash(relPath))
			digest, err := hashEntry(source)
			if err != nil {
				return fmt.Errorf("slice %q: %w", slice.Name, err)
			}

			if previous, collided := claimedBy[relPath]; collided {
				if previous.digest != digest {
					return &SliceCollisionError{
						Path:        relPath,
						FirstSlice:  previous.slice,
						SecondSlice: slice.Name,
					}
				}
				// Identical content: last writer wins, nothing to do.
				continue
			}
			claimedBy[relPath] = claim{slice: slice.Name, digest: digest}

			destination := filepath.Join(distDir, filepath.FromSlash(relPath))
			if err := copyEntry(source, destination); err != nil {
				return fmt.Errorf("slice %q: composing %s: %w", slice.Name, relPath, err)
			}
		}
	}
	return nil
}

// hashEntry digests a file's content, or a symlink's target path
// (two symlinks collide exactly when they point at different
// targets).
func hashEntry(path string) ([32]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return [32]byte{}, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := os.Readlink(path)
		if err != nil {
			return [32]byte{}, err
		}
		return binhash.HashBytes([]byte("symlink:"+linkTarget), binhash.SHA256), nil
	}
	return binhash.HashFile(path, binhash.SHA256)
}

func copyEntry(source, destination string) error {
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

	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	if err := os.Remove(destination); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(destination, data, info.Mode().Perm())
}

// SliceCollisionError reports two slices disagreeing on content at
// the same distribution path. Both slice names are carried: the fix
// is almost always a descriptor boundary change in one of them.
type SliceCollisionError struct {
	Path        string
	FirstSlice  string
	SecondSlice string
}

func (e *SliceCollisionError) Error() string {
	return fmt.Sprintf("slices %q and %q write different content to %s",
		e.FirstSlice, e.SecondSlice, e.Path)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *SliceCollisionError) Class() string { return "CollisionError" }
