// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/config"
	"github.com/quarry-build/quarry/lib/pipeline"
)

// packageCommand runs the full incremental packaging pipeline.
func packageCommand() *cli.Command {
	var (
		configPath string
		bundleName string
		workers    int
	)
	return &cli.Command{
		Name:    "package",
		Summary: "Run the incremental packaging pipeline",
		Usage:   "quarry package --config <file> [flags]",
		Description: `Slice, fingerprint, and archive every enabled component.

Components are processed in dependency order; slices whose fingerprints
match their recorded state are skipped. A component failure does not
stop independent components, but the command exits non-zero if any
component failed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("package", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "build configuration file (defaults to QUARRY_CONFIG)")
			flagSet.StringVar(&bundleName, "bundle-name", "", "dist bundle name override")
			flagSet.IntVar(&workers, "workers", 0, "worker pool size (0 means all CPUs)")
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
			if bundleName != "" {
				cfg.BundleName = bundleName
			}

			logger := cli.NewCommandLogger().With("command", "package")
			report, err := pipeline.New(cfg, logger, pipeline.WithWorkers(workers)).Run(context.Background())
			if err != nil {
				return err
			}

			archived, skipped := 0, 0
			for _, result := range report.Results {
				archived += len(result.Archived)
				skipped += len(result.Skipped)
			}
			logger.Info("pipeline complete", "archived", archived, "skipped", skipped)

			failed := report.Failed()
			for _, result := range failed {
				fmt.Fprintf(os.Stderr, "%s: %s\n", result.Component, formatError(result.Err))
			}
			if len(failed) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// loadConfig loads from the --config flag when given, otherwise from
// the QUARRY_CONFIG environment variable.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// formatError prefixes an error with its taxonomy class when it has
// one.
func formatError(err error) string {
	if classed, ok := err.(interface{ Class() string }); ok {
		return fmt.Sprintf("%s: %v", classed.Class(), err)
	}
	return err.Error()
}
