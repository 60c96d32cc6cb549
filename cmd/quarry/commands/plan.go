// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
)

// planCommand prints the enable report and resolved build order for a
// configuration without doing any work.
func planCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "plan",
		Summary: "Show the enable report and resolved build order",
		Usage:   "quarry plan --config <file>",
		Description: `Resolve the build plan from a configuration file.

Prints every component with its group and whether it was enabled
explicitly or pulled in as a dependency of an enabled component, then
the dependency-resolved build order.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "build configuration file (defaults to QUARRY_CONFIG)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			buildGraph, err := cfg.BuildGraph()
			if err != nil {
				return err
			}
			report := buildGraph.Finalize()
			order, err := buildGraph.ResolveOrder()
			if err != nil {
				return err
			}

			report.Write(os.Stdout)
			fmt.Printf("\nBuild order: %s\n", strings.Join(order, " "))
			return nil
		},
	}
}
