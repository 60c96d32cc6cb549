// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/compose"
)

// flattenCommand composes slice directories into one distribution tree.
func flattenCommand() *cli.Command {
	var outputDir string
	return &cli.Command{
		Name:    "artifact-flatten",
		Summary: "Compose slice directories into a distribution tree",
		Usage:   "quarry artifact-flatten <slice-dir>... -o <dir>",
		Description: `Flatten artifact slices into one installable distribution tree.

Each slice contributes exactly the files its manifest names. Slices may
overlap only with byte-identical content; divergent content at the same
path is a fatal collision.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("artifact-flatten", pflag.ContinueOnError)
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "distribution directory (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one slice directory is required")
			}
			if outputDir == "" {
				return fmt.Errorf("--output-dir is required")
			}

			slices := make([]compose.SliceRef, 0, len(args))
			for _, dir := range args {
				slices = append(slices, compose.SliceRef{
					Name: filepath.Base(filepath.Clean(dir)),
					Dir:  dir,
				})
			}
			if err := compose.Compose(slices, outputDir); err != nil {
				return err
			}

			cli.NewCommandLogger().With("command", "artifact-flatten").Info("composed distribution",
				"slices", len(slices), "dist", outputDir)
			return nil
		},
	}
}
