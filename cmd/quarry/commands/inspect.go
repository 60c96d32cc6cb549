// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/quarry-build/quarry/cmd/quarry/cli"
	"github.com/quarry-build/quarry/lib/codec"
	"github.com/quarry-build/quarry/lib/kpak"
)

// inspectCommand prints the contents of device payloads and group
// manifests.
func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:    "payload-inspect",
		Summary: "Inspect device payloads and group manifests",
		Usage:   "quarry payload-inspect <file>...",
		Description: `Print the table of contents of a .kpak device payload, or the
contents of a .kpm group manifest.

Payload tables list each blob's key, architecture, stored and
uncompressed sizes, and compression. Manifests are printed in CBOR
diagnostic notation, showing the encoded structure exactly as it sits
on disk.`,
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one payload or manifest file is required")
			}
			for _, path := range args {
				if err := inspectPayload(os.Stdout, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func inspectPayload(w io.Writer, path string) error {
	if filepath.Ext(path) == ".kpm" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading manifest %s: %w", path, err)
		}
		notation, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("decoding manifest %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s: %s\n", path, notation)
		return nil
	}

	archive, err := kpak.Open(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s:\n", path)
	table := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(table, "KEY\tARCH\tSTORED\tSIZE\tCOMPRESSION")
	for _, entry := range archive.Entries() {
		fmt.Fprintf(table, "%s\t%s\t%d\t%d\t%s\n",
			entry.Key, entry.Arch, entry.Length, entry.UncompressedSize, entry.Compression)
	}
	return table.Flush()
}
