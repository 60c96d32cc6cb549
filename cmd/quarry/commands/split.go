// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/fatbin"
)

// splitCommand separates fat binaries into neutral and per-architecture
// payloads.
func splitCommand() *cli.Command {
	var (
		outputDir   string
		targetArchs []string
	)
	return &cli.Command{
		Name:    "split-artifacts",
		Summary: "Split fat binaries into neutral and per-architecture payloads",
		Usage:   "quarry split-artifacts <binary>... --target <arch> [--target <arch>...] -o <dir>",
		Description: `Split fat binaries into architecture-neutral and device payloads.

Each binary's embedded device code is extracted into per-architecture
KPAK payloads; the extracted bytes are replaced in place by zero-filled
placeholders and a reference marker, so the neutral binary's layout is
unchanged. Host entries keep their bytes. Binaries without device code
pass through untouched; a binary embedding an architecture outside the
--target set is an error, since splitting it would lose that code.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("split-artifacts", pflag.ContinueOnError)
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "directory receiving payloads (required)")
			flagSet.StringArrayVar(&targetArchs, "target", nil, "targeted device architecture (repeatable, required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one binary is required")
			}
			if outputDir == "" {
				return fmt.Errorf("--output-dir is required")
			}
			if len(targetArchs) == 0 {
				return fmt.Errorf("at least one --target architecture is required")
			}

			logger := cli.NewCommandLogger().With("command", "split-artifacts")

			for _, binaryPath := range args {
				result, err := fatbin.Split(binaryPath, targetArchs, outputDir)
				if err != nil {
					return err
				}
				if !result.Split {
					logger.Info("no device code, passed through", "binary", binaryPath)
					continue
				}
				logger.Info("split", "binary", binaryPath, "archs", result.Archs)
			}
			return nil
		},
	}
}
