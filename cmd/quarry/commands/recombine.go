// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/fatbin"
)

// recombineCommand merges per-architecture payloads back with their
// neutral binaries into installable group trees.
func recombineCommand() *cli.Command {
	var (
		outputDir       string
		neutralPayloads []string
		groupSpecs      []string
		targetArchs     []string
	)
	return &cli.Command{
		Name:    "recombine-artifacts",
		Summary: "Recombine device payloads with neutral binaries into group trees",
		Usage:   "quarry recombine-artifacts <device-payload>... --neutral <file> --group <name>=<arch>,<arch> --target <arch> -o <dir>",
		Description: `Recombine per-architecture device payloads into installable trees.

Each --group names an output tree and the architectures it serves. The
union of all groups must equal the --target set exactly, and every
target architecture must arrive in some payload; anything less would
ship packages supporting fewer devices than the build claims.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("recombine-artifacts", pflag.ContinueOnError)
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "directory receiving group trees (required)")
			flagSet.StringArrayVar(&neutralPayloads, "neutral", nil, "architecture-neutral payload file (repeatable)")
			flagSet.StringArrayVar(&groupSpecs, "group", nil, "group spec <name>=<arch>[,<arch>...] (repeatable, required)")
			flagSet.StringArrayVar(&targetArchs, "target", nil, "architecture the split extracted (repeatable, required)")
			return flagSet
		},
		Run: func(args []string) error {
			if outputDir == "" {
				return fmt.Errorf("--output-dir is required")
			}
			if len(groupSpecs) == 0 {
				return fmt.Errorf("at least one --group is required")
			}
			if len(targetArchs) == 0 {
				return fmt.Errorf("at least one --target architecture is required")
			}

			grouping, err := parseGrouping(groupSpecs)
			if err != nil {
				return err
			}

			if err := fatbin.Recombine(neutralPayloads, args, grouping, targetArchs, outputDir); err != nil {
				return err
			}

			cli.NewCommandLogger().With("command", "recombine-artifacts").Info("recombined",
				"groups", len(grouping), "payloads", len(args), "output", outputDir)
			return nil
		},
	}
}

// parseGrouping parses --group specs of the form "name=archA,archB".
func parseGrouping(specs []string) (fatbin.GroupingConfig, error) {
	grouping := make(fatbin.GroupingConfig, len(specs))
	for _, spec := range specs {
		name, archList, found := strings.Cut(spec, "=")
		if !found || name == "" || archList == "" {
			return nil, fmt.Errorf("malformed --group %q: expected <name>=<arch>[,<arch>...]", spec)
		}
		if _, duplicate := grouping[name]; duplicate {
			return nil, fmt.Errorf("duplicate --group name %q", name)
		}
		archs := strings.Split(archList, ",")
		for _, arch := range archs {
			if arch == "" {
				return nil, fmt.Errorf("malformed --group %q: empty architecture", spec)
			}
		}
		grouping[name] = archs
	}
	return grouping, nil
}
