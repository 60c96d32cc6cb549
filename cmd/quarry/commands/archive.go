// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/archive"
	"github.com/quarry-build/quarry/lib/binhash"
	"github.com/quarry-build/quarry/lib/target"
)

// archiveCommand packs slice directories into compressed archives with
// digest sidecars.
func archiveCommand() *cli.Command {
	var (
		outputDir        string
		compressionLevel int
		hashFile         string
		hashAlgorithm    string
	)
	return &cli.Command{
		Name:    "artifact-archive",
		Summary: "Pack slice directories into tar.xz archives",
		Usage:   "quarry artifact-archive <slice-dir>... -o <dir> [flags]",
		Description: `Pack each slice directory into a <slice>.tar.xz archive.

Only files named in the slice's manifest are archived; a manifested
file missing from disk is fatal. Archives are deterministic (sorted
members, normalized timestamps) and each gets a digest sidecar.
Architecture-specific slices are compressed at level 1 regardless of
the configured level, since their contents recompress poorly and the
bytes are usually fetched once.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("artifact-archive", pflag.ContinueOnError)
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "directory receiving archives (defaults to each slice's parent)")
			flagSet.IntVar(&compressionLevel, "compression-level", 6, "xz compression level (0-9) for target-neutral slices")
			flagSet.StringVar(&hashFile, "hash-file", "", "explicit sidecar path (single slice only)")
			flagSet.StringVar(&hashAlgorithm, "hash-algorithm", string(binhash.SHA256), "sidecar digest algorithm (sha256 or blake3)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one slice directory is required")
			}
			if hashFile != "" && len(args) > 1 {
				return fmt.Errorf("--hash-file requires exactly one slice directory, got %d", len(args))
			}
			algorithm, err := binhash.ParseAlgorithm(hashAlgorithm)
			if err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "artifact-archive")

			for _, sliceDir := range args {
				sliceName := filepath.Base(filepath.Clean(sliceDir))

				destDir := outputDir
				if destDir == "" {
					destDir = filepath.Dir(filepath.Clean(sliceDir))
				}
				archivePath := filepath.Join(destDir, sliceName+archive.Suffix)

				sidecar := hashFile
				if sidecar == "" {
					sidecar = archivePath + "." + string(algorithm) + "sum"
				}

				// Slice naming carries the family; non-generic families
				// get the fast compression level.
				level := compressionLevel
				if _, _, family, ok := target.ParseSliceDirName(sliceName); ok {
					level = archive.LevelFor(family, compressionLevel)
				}

				err := archive.Write(sliceDir, archivePath, archive.Options{
					CompressionLevel: level,
					HashFile:         sidecar,
					HashAlgorithm:    algorithm,
				})
				if err != nil {
					return err
				}
				logger.Info("archived", "slice", sliceName, "archive", archivePath, "level", level)
			}
			return nil
		},
	}
}
