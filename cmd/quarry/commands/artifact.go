// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/descriptor"
	"github.com/quarry-build/quarry/lib/slicer"
	"github.com/quarry-build/quarry/lib/target"
)

// artifactCommand slices one component's install tree into per-slice
// artifact directories with manifests.
func artifactCommand() *cli.Command {
	var (
		rootDir        string
		descriptorPath string
		outputDir      string
		targetFamily   string
	)
	return &cli.Command{
		Name:    "artifact",
		Summary: "Slice an install tree into artifact directories",
		Usage:   "quarry artifact <name> --root-dir <dir> --descriptor <file> -o <dir> [flags]",
		Description: `Slice a component's install tree into artifact directories.

Reads the component's artifact descriptor, matches the install tree
against each slice's include/exclude patterns, and materializes one
directory per slice at <output-dir>/<name>_<slice>_<family>, each with
an artifact manifest enumerating exactly what it carries.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("artifact", pflag.ContinueOnError)
			flagSet.StringVar(&rootDir, "root-dir", "", "install tree to slice (required)")
			flagSet.StringVar(&descriptorPath, "descriptor", "", "artifact descriptor file (required)")
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "directory receiving slice directories (required)")
			flagSet.StringVar(&targetFamily, "target-family", target.GenericFamily, "target family for slice naming")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one artifact name, got %d args", len(args))
			}
			if rootDir == "" || descriptorPath == "" || outputDir == "" {
				return fmt.Errorf("--root-dir, --descriptor, and --output-dir are required")
			}
			name := args[0]

			desc, err := descriptor.Load(descriptorPath)
			if err != nil {
				return err
			}

			logger := cli.NewCommandLogger().With("command", "artifact", "artifact", name)

			outputs := make(map[string]string)
			for _, component := range desc.ComponentNames() {
				outputs[component] = sliceOutputPath(outputDir, name, component, targetFamily)
			}

			result, err := slicer.Slice(rootDir, desc, outputs)
			if err != nil {
				return err
			}
			for _, component := range desc.ComponentNames() {
				logger.Info("sliced",
					"slice", target.SliceDirName(name, component, targetFamily),
					"files", len(result.Manifests[component]))
			}
			return nil
		},
	}
}

func sliceOutputPath(outputDir, artifact, component, family string) string {
	return filepath.Join(outputDir, target.SliceDirName(artifact, component, family))
}
