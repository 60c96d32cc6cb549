// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package target

import (
	"errors"
	"slices"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry([]Family{
		{Name: "dcgpu3", Targets: []string{"gfx940", "gfx941", "gfx942"}},
		{Name: "dcgpu4", Targets: []string{"gfx950"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func TestNewRegistryValidation(t *testing.T) {
	cases := []struct {
		name     string
		families []Family
	}{
		{"empty name", []Family{{Name: "", Targets: []string{"gfx940"}}}},
		{"reserved generic", []Family{{Name: GenericFamily, Targets: []string{"gfx940"}}}},
		{"no targets", []Family{{Name: "dcgpu3"}}},
		{"duplicate", []Family{
			{Name: "dcgpu3", Targets: []string{"gfx940"}},
			{Name: "dcgpu3", Targets: []string{"gfx941"}},
		}},
	}
	for _, tc := range cases {
		if _, err := NewRegistry(tc.families); err == nil {
			t.Errorf("%s: NewRegistry succeeded, want error", tc.name)
		}
	}
}

func TestExpand(t *testing.T) {
	registry := testRegistry(t)

	archs, err := registry.Expand([]string{"dcgpu3", "dcgpu4"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"gfx940", "gfx941", "gfx942", "gfx950"}
	if !slices.Equal(archs, want) {
		t.Errorf("Expand = %v, want %v", archs, want)
	}

	var unknown *UnknownFamilyError
	if _, err := registry.Expand([]string{"dcgpu9"}); !errors.As(err, &unknown) {
		t.Errorf("Expand unknown family: got %v, want UnknownFamilyError", err)
	}
}

func TestDistBundleSingleFamily(t *testing.T) {
	registry := testRegistry(t)
	bundle, err := registry.DistBundle([]string{"dcgpu3"}, "")
	if err != nil {
		t.Fatalf("DistBundle: %v", err)
	}
	if bundle != "dcgpu3" {
		t.Errorf("bundle = %q, want dcgpu3", bundle)
	}
}

func TestDistBundleAmbiguity(t *testing.T) {
	registry := testRegistry(t)

	var ambiguous *AmbiguousBundleError
	if _, err := registry.DistBundle([]string{"dcgpu3", "dcgpu4"}, ""); !errors.As(err, &ambiguous) {
		t.Fatalf("DistBundle multiple: got %v, want AmbiguousBundleError", err)
	}
	if _, err := registry.DistBundle(nil, ""); !errors.As(err, &ambiguous) {
		t.Fatalf("DistBundle none: got %v, want AmbiguousBundleError", err)
	}

	// Override resolves the ambiguity.
	bundle, err := registry.DistBundle([]string{"dcgpu3", "dcgpu4"}, "alldc")
	if err != nil {
		t.Fatalf("DistBundle with override: %v", err)
	}
	if bundle != "alldc" {
		t.Errorf("bundle = %q, want alldc", bundle)
	}
}

func TestSliceDirNameRoundTrip(t *testing.T) {
	cases := []struct {
		artifact, component, family string
	}{
		{"mathlib", "lib", "dcgpu3"},
		{"mathlib", "dev", GenericFamily},
		{"core-runtime", "run", "dcgpu4"},
		{"has_underscores", "dbg", "dcgpu3"},
	}
	for _, tc := range cases {
		name := SliceDirName(tc.artifact, tc.component, tc.family)
		artifact, component, family, ok := ParseSliceDirName(name)
		if !ok {
			t.Errorf("ParseSliceDirName(%q) failed", name)
			continue
		}
		if artifact != tc.artifact || component != tc.component || family != tc.family {
			t.Errorf("round trip %q = (%q, %q, %q), want (%q, %q, %q)",
				name, artifact, component, family, tc.artifact, tc.component, tc.family)
		}
	}
}

func TestParseSliceDirNameArchiveSuffix(t *testing.T) {
	artifact, component, family, ok := ParseSliceDirName("mathlib_lib_dcgpu3.tar.xz")
	if !ok || artifact != "mathlib" || component != "lib" || family != "dcgpu3" {
		t.Errorf("parse = (%q, %q, %q, %v)", artifact, component, family, ok)
	}
}

func TestParseSliceDirNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{"", "nounderscore", "one_underscore", "_lib_dcgpu3"} {
		if _, _, _, ok := ParseSliceDirName(name); ok {
			t.Errorf("ParseSliceDirName(%q) succeeded, want failure", name)
		}
	}
}
