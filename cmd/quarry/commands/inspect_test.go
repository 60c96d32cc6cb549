// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quarry-build/quarry/lib/codec"
	"github.com/quarry-build/quarry/lib/kpak"
)

func TestInspectPayloadTable(t *testing.T) {
	writer := kpak.NewWriter(kpak.CompressionZstd)
	if err := writer.Add("libkernels.so/gfx940", "gfx940", []byte(strings.Repeat("device code ", 64))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "device.kpak")
	if err := writer.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if err := inspectPayload(&out, path); err != nil {
		t.Fatalf("inspectPayload: %v", err)
	}
	for _, want := range []string{"KEY", "libkernels.so/gfx940", "gfx940", "zstd"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestInspectPayloadManifest(t *testing.T) {
	encoded, err := codec.Marshal(map[string]any{"group": "dcgpu3"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "manifest.kpm")
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if err := inspectPayload(&out, path); err != nil {
		t.Fatalf("inspectPayload: %v", err)
	}
	for _, want := range []string{`"group"`, `"dcgpu3"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestInspectPayloadRejectsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.kpak")
	if err := os.WriteFile(path, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}
	var out strings.Builder
	if err := inspectPayload(&out, path); err == nil {
		t.Fatal("inspectPayload on corrupt archive succeeded")
	}
}
