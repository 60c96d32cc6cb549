// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete quarry CLI command tree.
package commands

import (
	"github.com/quarry-build/quarry/cmd/quarry/cli"
)

// Root builds and returns the complete quarry CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "quarry",
		Description: `Quarry: build artifact packaging and release tooling.

Slice component install trees into artifact archives, fingerprint them
for incremental rebuilds, split fat binaries into per-architecture
payloads, recombine them into installable groups, and compose slices
into distribution trees.`,
		Subcommands: []*cli.Command{
			artifactCommand(),
			flattenCommand(),
			archiveCommand(),
			splitCommand(),
			recombineCommand(),
			inspectCommand(),
			packageCommand(),
			planCommand(),
			fingerprintCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Slice a component install tree into artifact directories",
				Command:     "quarry artifact mathlib --root-dir build/mathlib/install --descriptor mathlib/artifact.toml -o build/artifacts",
			},
			{
				Description: "Plan the build: enable report and resolved order",
				Command:     "quarry plan --config quarry.yaml",
			},
			{
				Description: "Run the full incremental packaging pipeline",
				Command:     "quarry package --config quarry.yaml",
			},
			{
				Description: "Compose slices into a distribution tree",
				Command:     "quarry artifact-flatten build/artifacts/mathlib_lib_dcgpu3 build/artifacts/mathlib_dev_dcgpu3 -o build/dist/sdk",
			},
			{
				Description: "Split fat binaries for three device architectures",
				Command:     "quarry split-artifacts lib/libkernels.so --target gfx101 --target gfx102 -o build/payloads",
			},
		},
	}
}
