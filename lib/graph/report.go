// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// EnableEntry is one component's line in the enable report.
type EnableEntry struct {
	Name    string
	Group   string
	Enabled bool

	// ImplicitlyEnabled is true when the component was enabled only
	// because an enabled component depends on it. Surfaced so
	// operators can see why something they never asked for is being
	// built.
	ImplicitlyEnabled bool
}

// EnableReport is the human-readable enabled/disabled summary
// produced by Finalize.
type EnableReport struct {
	Entries []EnableEntry
}

// EnabledNames returns the names of all enabled components in
// declaration order.
func (r *EnableReport) EnabledNames() []string {
	var names []string
	for _, entry := range r.Entries {
		if entry.Enabled {
			names = append(names, entry.Name)
		}
	}
	return names
}

// Write renders the report as an aligned table.
func (r *EnableReport) Write(w io.Writer) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "COMPONENT\tGROUP\tSTATE\n")
	for _, entry := range r.Entries {
		state := "disabled"
		switch {
		case entry.ImplicitlyEnabled:
			state = "enabled (dependency)"
		case entry.Enabled:
			state = "enabled"
		}
		group := entry.Group
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Name, group, state)
	}
	tw.Flush()
}
