// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/fingerprint"
)

// fingerprintCommand inspects the recorded fingerprints of slice
// directories.
func fingerprintCommand() *cli.Command {
	var check bool
	return &cli.Command{
		Name:    "fingerprint",
		Summary: "Show recorded slice fingerprints",
		Usage:   "quarry fingerprint <slice-dir>... [flags]",
		Description: `Print the recorded fingerprint of each slice directory.

A slice without a readable sidecar reports "invalid" — the pipeline
will always repackage it. With --check, exit 1 if any slice is
invalid.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fingerprint", pflag.ContinueOnError)
			flagSet.BoolVar(&check, "check", false, "exit 1 if any slice has no valid fingerprint")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one slice directory is required")
			}

			anyInvalid := false
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, sliceDir := range args {
				fp := fingerprint.ReadSidecar(sliceDir)
				if !fp.Valid() {
					anyInvalid = true
				}
				fmt.Fprintf(tw, "%s\t%s\n", filepath.Base(filepath.Clean(sliceDir)), fp)
			}
			tw.Flush()

			if check && anyInvalid {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
