// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"slices"
	"testing"
)

func TestParseGrouping(t *testing.T) {
	grouping, err := parseGrouping([]string{
		"group1=gfx940,gfx941",
		"group2=gfx942",
	})
	if err != nil {
		t.Fatalf("parseGrouping: %v", err)
	}
	if !slices.Equal(grouping["group1"], []string{"gfx940", "gfx941"}) {
		t.Errorf("group1 = %v", grouping["group1"])
	}
	if !slices.Equal(grouping["group2"], []string{"gfx942"}) {
		t.Errorf("group2 = %v", grouping["group2"])
	}
}

func TestParseGroupingRejectsMalformed(t *testing.T) {
	cases := [][]string{
		{"no-equals"},
		{"=gfx940"},
		{"group1="},
		{"group1=gfx940,"},
		{"group1=gfx940", "group1=gfx941"},
	}
	for _, specs := range cases {
		if _, err := parseGrouping(specs); err == nil {
			t.Errorf("parseGrouping(%v) succeeded, want error", specs)
		}
	}
}
