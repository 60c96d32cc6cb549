// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"artifact", "artifcat", 2},
		{"plan", "plna", 2},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "artifact"},
		{Name: "plan"},
		{Name: "fingerprint"},
	}

	cases := []struct {
		input string
		want  string
	}{
		{"artifcat", "artifact"},
		{"plna", "plan"},
		{"fingerprnt", "fingerprint"},
		{"completely-unrelated", ""},
	}
	for _, tc := range cases {
		if got := suggestCommand(tc.input, commands); got != tc.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	makeFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("output-dir", "", "")
		flagSet.String("compression-level", "", "")
		return flagSet
	}

	if got := suggestFlag([]string{"--output-dri", "x"}, makeFlags()); got != "--output-dir" {
		t.Errorf("suggestFlag = %q, want --output-dir", got)
	}
	if got := suggestFlag([]string{"--output-dir=x"}, makeFlags()); got != "" {
		t.Errorf("suggestFlag on defined flag = %q, want empty", got)
	}
	if got := suggestFlag([]string{"--zzzzzzzzzzz"}, makeFlags()); got != "" {
		t.Errorf("suggestFlag with no close match = %q, want empty", got)
	}
}
