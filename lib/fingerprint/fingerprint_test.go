// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const descriptorHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func validFingerprint(t *testing.T, seed string) Fingerprint {
	t.Helper()
	return Compute(seed, descriptorHash, nil)
}

func TestComputeIsDeterministic(t *testing.T) {
	deps := map[string]Fingerprint{
		"base":    validFingerprint(t, "base"),
		"runtime": validFingerprint(t, "runtime"),
	}

	first := Compute("mathlib_lib_dcgpu3", descriptorHash, deps)
	if !first.Valid() {
		t.Fatal("Compute returned invalid for all-valid inputs")
	}
	for i := 0; i < 20; i++ {
		again := Compute("mathlib_lib_dcgpu3", descriptorHash, deps)
		if !first.Equal(again) {
			t.Fatalf("fingerprints differ: %s vs %s", first, again)
		}
	}
}

func TestComputeIgnoresMapInsertionOrder(t *testing.T) {
	a := validFingerprint(t, "a")
	b := validFingerprint(t, "b")

	forward := map[string]Fingerprint{"alpha": a, "beta": b}
	reversed := map[string]Fingerprint{"beta": b, "alpha": a}

	if !Compute("s", descriptorHash, forward).Equal(Compute("s", descriptorHash, reversed)) {
		t.Error("fingerprint depends on map insertion order")
	}
}

func TestComputeSensitivity(t *testing.T) {
	deps := map[string]Fingerprint{"base": validFingerprint(t, "base")}
	base := Compute("mathlib_lib_dcgpu3", descriptorHash, deps)

	otherName := Compute("mathlib_dev_dcgpu3", descriptorHash, deps)
	if base.Equal(otherName) {
		t.Error("different slice names produced equal fingerprints")
	}

	otherDescriptor := Compute("mathlib_lib_dcgpu3", strings.Repeat("b", 64), deps)
	if base.Equal(otherDescriptor) {
		t.Error("different descriptor hashes produced equal fingerprints")
	}

	otherDeps := map[string]Fingerprint{"base": validFingerprint(t, "changed")}
	if base.Equal(Compute("mathlib_lib_dcgpu3", descriptorHash, otherDeps)) {
		t.Error("different dependency fingerprints produced equal fingerprints")
	}
}

func TestInvalidDependencyPropagates(t *testing.T) {
	deps := map[string]Fingerprint{
		"base":   validFingerprint(t, "base"),
		"broken": Invalid,
	}
	fp := Compute("mathlib_lib_dcgpu3", descriptorHash, deps)
	if fp.Valid() {
		t.Fatalf("Compute with invalid dependency returned valid fingerprint %s", fp)
	}
}

func TestInvalidNeverEqual(t *testing.T) {
	if Invalid.Equal(Invalid) {
		t.Error("two invalid fingerprints compare equal")
	}
	valid := validFingerprint(t, "x")
	if valid.Equal(Invalid) || Invalid.Equal(valid) {
		t.Error("valid fingerprint compares equal to invalid")
	}
	if Invalid.String() != "invalid" {
		t.Errorf("Invalid.String() = %q", Invalid.String())
	}
}

func TestFromHex(t *testing.T) {
	fp := validFingerprint(t, "seed")
	parsed, err := FromHex(fp.Hex())
	if err != nil {
		t.Fatalf("FromHex(%q): %v", fp.Hex(), err)
	}
	if !parsed.Equal(fp) {
		t.Errorf("round trip changed fingerprint: %s vs %s", parsed, fp)
	}

	for _, bad := range []string{"", "zz", strings.Repeat("a", 63), strings.Repeat("g", 64)} {
		if _, err := FromHex(bad); err == nil {
			t.Errorf("FromHex(%q) succeeded, want error", bad)
		}
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	sliceDir := filepath.Join(t.TempDir(), "mathlib_lib_dcgpu3")
	fp := validFingerprint(t, "seed")

	if err := WriteSidecar(sliceDir, fp); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	if got := ReadSidecar(sliceDir); !got.Equal(fp) {
		t.Errorf("ReadSidecar = %s, want %s", got, fp)
	}
}

func TestWriteSidecarInvalidRemoves(t *testing.T) {
	sliceDir := filepath.Join(t.TempDir(), "mathlib_lib_dcgpu3")
	if err := WriteSidecar(sliceDir, validFingerprint(t, "seed")); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	if err := WriteSidecar(sliceDir, Invalid); err != nil {
		t.Fatalf("WriteSidecar(Invalid): %v", err)
	}
	if _, err := os.Stat(SidecarPath(sliceDir)); !os.IsNotExist(err) {
		t.Errorf("sidecar still exists after invalid write: %v", err)
	}
	if got := ReadSidecar(sliceDir); got.Valid() {
		t.Errorf("ReadSidecar after removal = %s, want invalid", got)
	}

	// Removing an absent sidecar is not an error.
	if err := WriteSidecar(sliceDir, Invalid); err != nil {
		t.Errorf("WriteSidecar(Invalid) on missing sidecar: %v", err)
	}
}

func TestReadSidecarGarbage(t *testing.T) {
	sliceDir := filepath.Join(t.TempDir(), "mathlib_lib_dcgpu3")
	if err := os.WriteFile(SidecarPath(sliceDir), []byte("not a digest\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ReadSidecar(sliceDir); got.Valid() {
		t.Errorf("ReadSidecar of garbage = %s, want invalid", got)
	}
}

func TestHashDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.toml")
	if err := os.WriteFile(path, []byte("[components.lib]\ninclude = [\"lib/**\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	first, err := HashDescriptor(path)
	if err != nil {
		t.Fatalf("HashDescriptor: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("descriptor hash %q is not 64 hex chars", first)
	}
	again, err := HashDescriptor(path)
	if err != nil {
		t.Fatalf("HashDescriptor: %v", err)
	}
	if first != again {
		t.Errorf("descriptor hash unstable: %s vs %s", first, again)
	}

	if _, err := HashDescriptor(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("HashDescriptor of missing file succeeded")
	}
}
