// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const mathlibDescriptor = `
[components.lib]
include = ["lib/*.so"]

[components.dev]
include = ["include/**", "lib/*.a"]

[components.dbg]
include = ["lib/.debug/**"]
optional = true
`

func parse(t *testing.T, raw string) *Descriptor {
	t.Helper()
	desc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return desc
}

func TestParseComponents(t *testing.T) {
	desc := parse(t, mathlibDescriptor)

	want := []string{"dbg", "dev", "lib"}
	if got := desc.ComponentNames(); !slices.Equal(got, want) {
		t.Errorf("ComponentNames = %v, want %v", got, want)
	}

	rules, ok := desc.Component("dbg")
	if !ok {
		t.Fatal("Component(dbg) not found")
	}
	if !rules.Optional {
		t.Error("dbg should be optional")
	}
	if _, ok := desc.Component("doc"); ok {
		t.Error("Component(doc) found, want absent")
	}
}

func TestMatches(t *testing.T) {
	desc := parse(t, `
[components.lib]
include = ["lib/*.so"]

[components.dev]
include = ["include/**", "lib/*.a"]
exclude = ["include/internal/**"]
`)

	cases := []struct {
		component string
		relPath   string
		want      bool
	}{
		{"lib", "lib/libmath.so", true},
		{"lib", "lib/libmath.a", false},
		{"lib", "lib/sub/libmath.so", false},
		{"dev", "include/math.h", true},
		{"dev", "include/sub/deep/math.h", true},
		{"dev", "include/internal/secret.h", false},
		{"dev", "lib/libmath.a", true},
		{"dev", "bin/mathtool", false},
		{"doc", "share/doc/readme", false},
	}
	for _, tc := range cases {
		if got := desc.Matches(tc.component, tc.relPath); got != tc.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tc.component, tc.relPath, got, tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not toml", "{{{{"},
		{"no components", "title = \"empty\"\n"},
		{"no includes", "[components.lib]\nexclude = [\"x\"]\n"},
		{"bad include glob", "[components.lib]\ninclude = [\"lib/[\"]\n"},
		{"bad exclude glob", "[components.lib]\ninclude = [\"lib/*\"]\nexclude = [\"[\"]\n"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.raw))
		var invalid *InvalidDescriptorError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: got %v, want InvalidDescriptorError", tc.name, err)
		}
	}
}

func TestContentHashTracksBytes(t *testing.T) {
	first := parse(t, mathlibDescriptor)
	same := parse(t, mathlibDescriptor)
	if first.ContentHash() != same.ContentHash() {
		t.Error("identical content produced different hashes")
	}

	// A comment changes the bytes, so the hash must change even though
	// the semantics do not.
	commented := parse(t, mathlibDescriptor+"\n# note\n")
	if first.ContentHash() == commented.ContentHash() {
		t.Error("edited content produced identical hash")
	}
	if len(first.ContentHash()) != 64 {
		t.Errorf("ContentHash %q is not 64 hex chars", first.ContentHash())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.toml")
	if err := os.WriteFile(path, []byte(mathlibDescriptor), 0644); err != nil {
		t.Fatal(err)
	}

	desc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if desc.Path != path {
		t.Errorf("Path = %q, want %q", desc.Path, path)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	var invalid *InvalidDescriptorError
	if !errors.As(err, &invalid) {
		t.Fatalf("Load missing: got %v, want InvalidDescriptorError", err)
	}
	if !strings.Contains(invalid.Error(), invalid.Path) {
		t.Errorf("error %q does not name path", invalid.Error())
	}
}
