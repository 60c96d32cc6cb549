// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package kpak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/quarry-build/quarry/lib/codec"
)

// compressibleBlob returns data that every real compressor shrinks.
func compressibleBlob(seed string, size int) []byte {
	return bytes.Repeat([]byte(seed), size/len(seed)+1)[:size]
}

func TestWriterRoundTrip(t *testing.T) {
	blobs := map[string][]byte{
		"libkernels.so/gfx940": compressibleBlob("gfx940 device code ", 4096),
		"libkernels.so/gfx941": compressibleBlob("gfx941 device code ", 2048),
		"libsolver.so/gfx940":  compressibleBlob("solver kernels ", 1024),
	}

	writer := NewWriter(CompressionZstd)
	if err := writer.Add("libkernels.so/gfx941", "gfx941", blobs["libkernels.so/gfx941"]); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := writer.Add("libsolver.so/gfx940", "gfx940", blobs["libsolver.so/gfx940"]); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := writer.Add("libkernels.so/gfx940", "gfx940", blobs["libkernels.so/gfx940"]); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if writer.Len() != 3 {
		t.Fatalf("Len = %d, want 3", writer.Len())
	}

	path := filepath.Join(t.TempDir(), "device.kpak")
	if err := writer.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Entries come back sorted by key regardless of insertion order.
	var keys []string
	for _, entry := range archive.Entries() {
		keys = append(keys, entry.Key)
	}
	want := []string{"libkernels.so/gfx940", "libkernels.so/gfx941", "libsolver.so/gfx940"}
	if !slices.Equal(keys, want) {
		t.Errorf("entry keys = %v, want %v", keys, want)
	}

	if got := archive.Archs(); !slices.Equal(got, []string{"gfx940", "gfx941"}) {
		t.Errorf("Archs = %v", got)
	}

	for key, data := range blobs {
		extracted, err := archive.Extract(key)
		if err != nil {
			t.Fatalf("Extract(%q): %v", key, err)
		}
		if !bytes.Equal(extracted, data) {
			t.Errorf("Extract(%q) returned %d bytes differing from input", key, len(extracted))
		}
	}

	if _, err := archive.Extract("no/such/key"); err == nil {
		t.Error("Extract of absent key succeeded")
	}
}

func TestWriterFlushIsDeterministic(t *testing.T) {
	build := func(order []string) []byte {
		writer := NewWriter(CompressionZstd)
		for _, key := range order {
			if err := writer.Add(key, "gfx940", compressibleBlob(key+" ", 512)); err != nil {
				t.Fatalf("Add(%q): %v", key, err)
			}
		}
		var buf bytes.Buffer
		if err := writer.Flush(&buf); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		return buf.Bytes()
	}

	forward := build([]string{"a", "b", "c"})
	reversed := build([]string{"c", "b", "a"})
	if !bytes.Equal(forward, reversed) {
		t.Error("archive bytes depend on insertion order")
	}
}

func TestWriterRejectsDuplicateKeys(t *testing.T) {
	writer := NewWriter(CompressionNone)
	if err := writer.Add("k", "gfx940", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := writer.Add("k", "gfx941", []byte("y")); err == nil {
		t.Fatal("duplicate key accepted")
	}
}

func TestWriterRejectsEmptyFlush(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(CompressionNone).Flush(&buf); err == nil {
		t.Fatal("empty flush succeeded")
	}
}

func TestIncompressibleBlobStoredRaw(t *testing.T) {
	// High-entropy bytes that zstd cannot shrink.
	data := make([]byte, 1024)
	state := uint32(0x9e3779b9)
	for i := range data {
		state = state*1664525 + 1013904223
		data[i] = byte(state >> 24)
	}

	writer := NewWriter(CompressionZstd)
	if err := writer.Add("noise", "gfx940", data); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.Flush(&buf); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	archive, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry := archive.Entries()[0]
	if entry.Compression != CompressionNone {
		t.Errorf("compression tag = %v, want none", entry.Compression)
	}
	extracted, err := archive.Extract("noise")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(extracted, data) {
		t.Error("extracted bytes differ")
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	data := compressibleBlob("lz4 payload ", 8192)
	writer := NewWriter(CompressionLZ4)
	if err := writer.Add("blob", "gfx940", data); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.Flush(&buf); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	archive, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	extracted, err := archive.Extract("blob")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(extracted, data) {
		t.Error("lz4 round trip lost data")
	}
}

func validArchiveBytes(t *testing.T) []byte {
	t.Helper()
	writer := NewWriter(CompressionZstd)
	if err := writer.Add("blob", "gfx940", compressibleBlob("payload ", 1024)); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writer.Flush(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseRejectsCorruption(t *testing.T) {
	valid := validArchiveBytes(t)

	cases := []struct {
		name    string
		mutate  func([]byte)
		wantMsg string
	}{
		{"truncated", func(raw []byte) {}, "smaller than"},
		{"bad magic", func(raw []byte) { raw[0] = 'X' }, "magic"},
		{"bad version", func(raw []byte) { raw[4] = 99 }, "version"},
		{"dirty padding", func(raw []byte) { raw[40] = 1 }, "padding"},
		{"toc offset out of range", func(raw []byte) { raw[8] = 0xff; raw[9] = 0xff }, "out of range"},
	}
	for _, tc := range cases {
		raw := slices.Clone(valid)
		if tc.name == "truncated" {
			raw = raw[:10]
		} else {
			tc.mutate(raw)
		}

		_, err := Parse(raw)
		var invalid *InvalidKpakError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: got %v, want InvalidKpakError", tc.name, err)
			continue
		}
		if !strings.Contains(invalid.Reason, tc.wantMsg) {
			t.Errorf("%s: reason %q does not mention %q", tc.name, invalid.Reason, tc.wantMsg)
		}
	}
}

// craftedArchive assembles archive bytes around a hand-built table of
// contents, with 8 bytes of blob data between header and TOC.
func craftedArchive(t *testing.T, entries []Entry) []byte {
	t.Helper()
	toc, err := codec.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	raw := make([]byte, dataStart+8)
	copy(raw[0:4], magic[:])
	binary.LittleEndian.PutUint16(raw[4:6], formatVersion)
	binary.LittleEndian.PutUint64(raw[8:16], uint64(len(raw)))
	return append(raw, toc...)
}

func TestParseRejectsEntryBoundsOverflow(t *testing.T) {
	// A length near 2^64 wraps Offset+Length around zero; the bounds
	// check must reject the entry rather than let Extract slice far
	// outside the data region.
	raw := craftedArchive(t, []Entry{{
		Key:    "blob",
		Arch:   "gfx940",
		Offset: dataStart,
		Length: ^uint64(0) - 50,
	}})

	_, err := Parse(raw)
	var invalid *InvalidKpakError
	if !errors.As(err, &invalid) {
		t.Fatalf("Parse: got %v, want InvalidKpakError", err)
	}
	if !strings.Contains(invalid.Reason, "data region") {
		t.Errorf("reason %q does not mention the data region", invalid.Reason)
	}
}

func TestParseRejectsOversizedUncompressedClaim(t *testing.T) {
	raw := craftedArchive(t, []Entry{{
		Key:              "blob",
		Arch:             "gfx940",
		Offset:           dataStart,
		Length:           8,
		UncompressedSize: uint64(maxUncompressedSize) + 1,
		Compression:      CompressionZstd,
	}})

	_, err := Parse(raw)
	var invalid *InvalidKpakError
	if !errors.As(err, &invalid) {
		t.Fatalf("Parse: got %v, want InvalidKpakError", err)
	}
	if !strings.Contains(invalid.Reason, "limit") {
		t.Errorf("reason %q does not mention the size limit", invalid.Reason)
	}
}

func TestExtractDetectsBlobCorruption(t *testing.T) {
	raw := validArchiveBytes(t)

	// Flip a byte inside the blob data region (after the header
	// block, before the TOC).
	raw[dataStart] ^= 0xff

	archive, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = archive.Extract("blob")
	var invalid *InvalidKpakError
	if !errors.As(err, &invalid) {
		t.Fatalf("Extract of corrupted blob: got %v, want InvalidKpakError", err)
	}
}

func TestCompressionTagString(t *testing.T) {
	cases := map[CompressionTag]string{
		CompressionNone:   "none",
		CompressionLZ4:    "lz4",
		CompressionZstd:   "zstd",
		CompressionTag(9): "unknown(9)",
	}
	for tag, want := range cases {
		if got := tag.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", tag, got, want)
		}
	}
}
