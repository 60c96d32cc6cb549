// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package kpak

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/quarry-build/quarry/lib/codec"
)

// Format constants. The header is fixed at 16 bytes — 4-byte magic,
// 2-byte version, 2 reserved bytes, 8-byte table-of-contents offset —
// and padded with zeros to a 64-byte boundary so blob data starts
// aligned. Blobs follow, then the CBOR table of contents at the
// recorded offset.
const (
	formatVersion = 1

	headerSize = 16
	dataStart  = 64

	// maxUncompressedSize caps a single blob. Device-code blobs run to
	// hundreds of megabytes at most; a table of contents claiming more
	// than this is corrupt, and the cap keeps the claimed size safely
	// convertible to int on every platform.
	maxUncompressedSize = 1 << 31
)

// magic is the 4-byte archive signature.
var magic = [4]byte{'K', 'P', 'A', 'K'}

// Entry describes one blob in the table of contents. Key is the
// stable blob identifier (binary base name + architecture composite);
// Arch is the device architecture the blob targets.
type Entry struct {
	Key              string         `cbor:"key"`
	Arch             string         `cbor:"arch"`
	Offset           uint64         `cbor:"offset"`
	Length           uint64         `cbor:"length"`
	UncompressedSize uint64         `cbor:"usize"`
	Compression      CompressionTag `cbor:"comp"`

	// Digest is the BLAKE3 hash of the uncompressed blob, verified
	// on extraction.
	Digest [32]byte `cbor:"digest"`
}

// Writer accumulates blobs and serializes them as a KPAK archive.
// Blob data is buffered in memory until Flush — the table of
// contents records final offsets, so nothing can be emitted until
// all blobs are known.
type Writer struct {
	compression CompressionTag
	entries     []Entry
	blobs       [][]byte
	keys        map[string]bool
}

// NewWriter creates a writer compressing blobs with the given
// algorithm (incompressible blobs fall back to none automatically).
func NewWriter(compression CompressionTag) *Writer {
	return &Writer{compression: compression, keys: make(map[string]bool)}
}

// Add appends a blob. Keys must be unique within an archive.
func (w *Writer) Add(key, arch string, data []byte) error {
	if w.keys[key] {
		return fmt.Errorf("kpak: duplicate blob key %q", key)
	}
	if uint64(len(data)) > maxUncompressedSize {
		return fmt.Errorf("kpak: blob %q is %d bytes, beyond the %d-byte limit", key, len(data), uint64(maxUncompressedSize))
	}

	compressed, tag, err := compressBlob(data, w.compression)
	if err != nil {
		return fmt.Errorf("kpak: compressing blob %q: %w", key, err)
	}

	w.keys[key] = true
	w.entries = append(w.entries, Entry{
		Key:              key,
		Arch:             arch,
		Length:           uint64(len(compressed)),
		UncompressedSize: uint64(len(data)),
		Compression:      tag,
		Digest:           blake3.Sum256(data),
	})
	w.blobs = append(w.blobs, compressed)
	return nil
}

// Len returns the number of blobs added so far.
func (w *Writer) Len() int { return len(w.entries) }

// Flush writes the complete archive to w. Entries are ordered by key
// so that identical blob sets always produce an identical table of
// contents. The writer is reset afterwards.
func (w *Writer) Flush(out io.Writer) error {
	if len(w.entries) == 0 {
		return fmt.Errorf("kpak: cannot flush empty archive")
	}

	order := make([]int, len(w.entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return w.entries[order[a]].Key < w.entries[order[b]].Key
	})

	entries := make([]Entry, len(order))
	offset := uint64(dataStart)
	for rank, index := range order {
		entry := w.entries[index]
		entry.Offset = offset
		offset += entry.Length
		entries[rank] = entry
	}
	tocOffset := offset

	var header [dataStart]byte
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint16(header[4:6], formatVersion)
	binary.LittleEndian.PutUint64(header[8:16], tocOffset)
	if _, err := out.Write(header[:]); err != nil {
		return fmt.Errorf("kpak: writing header: %w", err)
	}

	for _, index := range order {
		if _, err := out.Write(w.blobs[index]); err != nil {
			return fmt.Errorf("kpak: writing blob %q: %w", w.entries[index].Key, err)
		}
	}

	toc, err := codec.Marshal(entries)
	if err != nil {
		return fmt.Errorf("kpak: encoding table of contents: %w", err)
	}
	if _, err := out.Write(toc); err != nil {
		return fmt.Errorf("kpak: writing table of contents: %w", err)
	}

	w.entries = nil
	w.blobs = nil
	w.keys = make(map[string]bool)
	return nil
}

// WriteFile flushes the archive to path via a temporary file and
// rename, so a failed flush leaves no partial archive.
func (w *Writer) WriteFile(path string) error {
	tmp, err := os.CreateTemp(pathDir(path), ".kpak-*")
	if err != nil {
		return fmt.Errorf("kpak: creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := w.Flush(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kpak: closing %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}

func pathDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == os.PathSeparator {
			return path[:i]
		}
	}
	return "."
}

// Archive is a parsed KPAK archive held in memory: the table of
// contents plus the raw file bytes for blob extraction.
type Archive struct {
	entries []Entry
	byKey   map[string]int
	raw     []byte
}

// Open reads and validates a KPAK archive from disk.
func Open(path string) (*Archive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kpak: reading %s: %w", path, err)
	}
	archive, err := Parse(raw)
	if err != nil {
		if invalid, ok := err.(*InvalidKpakError); ok {
			invalid.Path = path
			return nil, invalid
		}
		return nil, err
	}
	return archive, nil
}

// Parse validates archive bytes: magic, version, padding, TOC
// bounds, and every entry's blob bounds.
func Parse(raw []byte) (*Archive, error) {
	if len(raw) < dataStart {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("archive is %d bytes, smaller than the %d-byte header block", len(raw), dataStart)}
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, &InvalidKpakError{Reason: "invalid magic bytes"}
	}
	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != formatVersion {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("format version %d is not supported (this code supports version %d)", version, formatVersion)}
	}
	for _, b := range raw[headerSize:dataStart] {
		if b != 0 {
			return nil, &InvalidKpakError{Reason: "non-zero bytes in header padding"}
		}
	}

	tocOffset := binary.LittleEndian.Uint64(raw[8:16])
	if tocOffset < dataStart || tocOffset > uint64(len(raw)) {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("table-of-contents offset %d out of range", tocOffset)}
	}

	var entries []Entry
	if err := codec.Unmarshal(raw[tocOffset:], &entries); err != nil {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("decoding table of contents: %v", err)}
	}
	if len(entries) == 0 {
		return nil, &InvalidKpakError{Reason: "archive has no blobs"}
	}

	byKey := make(map[string]int, len(entries))
	for i, entry := range entries {
		// Subtraction form: a crafted Offset+Length can wrap around
		// and slip past a sum comparison.
		if entry.Offset < dataStart || entry.Offset > tocOffset || entry.Length > tocOffset-entry.Offset {
			return nil, &InvalidKpakError{Reason: fmt.Sprintf("blob %q extends outside the data region", entry.Key)}
		}
		if entry.UncompressedSize > maxUncompressedSize {
			return nil, &InvalidKpakError{Reason: fmt.Sprintf("blob %q claims %d uncompressed bytes, beyond the %d-byte limit",
				entry.Key, entry.UncompressedSize, uint64(maxUncompressedSize))}
		}
		if _, exists := byKey[entry.Key]; exists {
			return nil, &InvalidKpakError{Reason: fmt.Sprintf("duplicate blob key %q", entry.Key)}
		}
		byKey[entry.Key] = i
	}

	return &Archive{entries: entries, byKey: byKey, raw: raw}, nil
}

// Entries returns the table of contents in archive order (sorted by
// key).
func (a *Archive) Entries() []Entry {
	entries := make([]Entry, len(a.entries))
	copy(entries, a.entries)
	return entries
}

// Archs returns the sorted, deduplicated set of architectures
// present in the archive.
func (a *Archive) Archs() []string {
	seen := make(map[string]bool)
	for _, entry := range a.entries {
		seen[entry.Arch] = true
	}
	archs := make([]string, 0, len(seen))
	for arch := range seen {
		archs = append(archs, arch)
	}
	sort.Strings(archs)
	return archs
}

// Extract decompresses and verifies the blob with the given key.
func (a *Archive) Extract(key string) ([]byte, error) {
	index, ok := a.byKey[key]
	if !ok {
		return nil, fmt.Errorf("kpak: no blob with key %q", key)
	}
	entry := a.entries[index]

	compressed := a.raw[entry.Offset : entry.Offset+entry.Length]
	data, err := decompressBlob(compressed, entry.Compression, int(entry.UncompressedSize))
	if err != nil {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("blob %q: %v", key, err)}
	}

	if digest := blake3.Sum256(data); digest != entry.Digest {
		return nil, &InvalidKpakError{Reason: fmt.Sprintf("blob %q digest mismatch", key)}
	}
	return data, nil
}

// InvalidKpakError reports a structurally invalid KPAK archive.
type InvalidKpakError struct {
	Path   string
	Reason string
}

func (e *InvalidKpakError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid kpak archive: %s", e.Reason)
	}
	return fmt.Sprintf("invalid kpak archive %s: %s", e.Path, e.Reason)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *InvalidKpakError) Class() string { return "BinaryFormatError" }
