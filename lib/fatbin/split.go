// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fatbin

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Reference marker written at the start of a stripped device-code
// region: magic "KREF", u16 version, 2 reserved bytes, u64 key
// length, key bytes. The remainder of the region stays zero. Loaders
// and tooling locate the external device payload by reading the key
// out of the former bundle section; the section itself keeps its
// exact size and offset, so nothing else in the binary moves.
const (
	markerVersion = 1

	markerHeaderSize = 16
)

var markerMagic = [4]byte{'K', 'R', 'E', 'F'}

// SplitResult reports what Split produced.
type SplitResult struct {
	// Split is false for host-only binaries: no device code was found
	// and the input was passed through unchanged, with no marker
	// added.
	Split bool

	// NeutralPath is the emitted architecture-neutral host binary.
	NeutralPath string

	// DevicePayloads maps each extracted architecture to its KPAK
	// payload path.
	DevicePayloads map[string]string

	// Archs is the sorted list of extracted architectures.
	Archs []string
}

// Split separates the fat binary at binaryPath into an
// architecture-neutral payload and one device payload per embedded
// architecture, writing all outputs under outputDir.
//
// Every embedded device blob is extracted; host entries keep their
// bytes in place. Extracted blob ranges in the emitted host binary
// are zero-filled placeholders of identical size — section table
// layout and every file offset are preserved exactly, which
// downstream loaders and tools depend on — and a KREF marker is
// injected over the bundle header of each stripped region.
//
// When targetArchs is non-empty, an embedded device architecture
// outside the set is an error: zeroing it would destroy code no
// payload preserves, and leaving it embedded would silently ship an
// un-split fat binary.
//
// A binary with no embedded device code passes through unchanged: a
// no-op, not an error. A binary whose bundle cannot be parsed fails
// with UnsupportedBinaryFormatError, never a silent skip — silently
// shipping an un-split fat binary would break the size-reduction
// guarantee callers rely on.
func Split(binaryPath string, targetArchs []string, outputDir string) (*SplitResult, error) {
	raw, err := os.ReadFile(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("reading binary: %w", err)
	}
	info, err := os.Stat(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("stat binary: %w", err)
	}

	baseName := filepath.Base(binaryPath)
	neutralPath := filepath.Join(outputDir, baseName)
	passThrough := func() (*SplitResult, error) {
		if err := writeFileDir(neutralPath, raw, info.Mode().Perm()); err != nil {
			return nil, err
		}
		return &SplitResult{Split: false, NeutralPath: neutralPath}, nil
	}

	// Non-ELF files (scripts, data installed into bin/) are never
	// split candidates.
	if len(raw) < 4 || !bytes.Equal(raw[:4], []byte(elf.ELFMAG)) {
		return passThrough()
	}

	elfFile, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, &UnsupportedBinaryFormatError{Path: binaryPath, Reason: fmt.Sprintf("parsing ELF: %v", err)}
	}
	defer elfFile.Close()

	type bundleRegion struct {
		offset uint64
		size   uint64
	}
	var regions []bundleRegion
	for _, section := range elfFile.Sections {
		if section.Name != deviceSectionName || section.Type == elf.SHT_NOBITS || section.Size == 0 {
			continue
		}
		if section.Offset > uint64(len(raw)) || section.Size > uint64(len(raw))-section.Offset {
			return nil, &UnsupportedBinaryFormatError{Path: binaryPath,
				Reason: fmt.Sprintf("section %s extends outside the file", section.Name)}
		}
		regions = append(regions, bundleRegion{offset: section.Offset, size: section.Size})
	}

	if len(regions) == 0 {
		return passThrough()
	}

	wanted := make(map[string]bool, len(targetArchs))
	for _, arch := range targetArchs {
		wanted[arch] = true
	}

	// Parse every bundle and plan the whole split before mutating a
	// single byte: any failure from here on, and any host-only bundle,
	// must leave the pass-through path with the untouched input.
	type regionPlan struct {
		bundleRegion
		device []bundleEntry
	}
	marker := buildMarker(baseName)
	plans := make([]regionPlan, 0, len(regions))
	deviceBlobs := make(map[string][]byte)
	for _, region := range regions {
		entries, err := parseBundle(raw[region.offset : region.offset+region.size])
		if err != nil {
			return nil, &UnsupportedBinaryFormatError{Path: binaryPath,
				Reason: fmt.Sprintf("parsing offload bundle: %v", err)}
		}
		if uint64(len(marker)) > region.size {
			return nil, &UnsupportedBinaryFormatError{Path: binaryPath,
				Reason: fmt.Sprintf("bundle region (%d bytes) too small for reference marker", region.size)}
		}

		plan := regionPlan{bundleRegion: region}
		for _, entry := range entries {
			arch := entry.arch()
			if arch == "" {
				// Host entry: its bytes stay in the binary. The marker
				// replaces the bundle header, so it must not reach into
				// a preserved blob.
				if entry.offset < uint64(len(marker)) {
					return nil, &UnsupportedBinaryFormatError{Path: binaryPath,
						Reason: "reference marker would overwrite a host entry"}
				}
				continue
			}
			if len(wanted) > 0 && !wanted[arch] {
				return nil, &UnsupportedBinaryFormatError{Path: binaryPath,
					Reason: fmt.Sprintf("embedded device code for architecture %q outside the requested target set", arch)}
			}
			blob := make([]byte, entry.size)
			copy(blob, raw[region.offset+entry.offset:])
			deviceBlobs[arch] = append(deviceBlobs[arch], blob...)
			plan.device = append(plan.device, entry)
		}
		plans = append(plans, plan)
	}

	if len(deviceBlobs) == 0 {
		// Bundles parsed but held only host entries — the binary is
		// effectively host-only.
		return passThrough()
	}

	// Zero each extracted blob's bytes in place and inject the
	// reference marker over the bundle header. Region lengths are
	// unchanged, so the section table is untouched. A region that held
	// only host entries keeps its header readable.
	for _, plan := range plans {
		if len(plan.device) == 0 {
			continue
		}
		for _, entry := range plan.device {
			start := plan.offset + entry.offset
			zero(raw[start : start+entry.size])
		}
		copy(raw[plan.offset:], marker)
	}

	result := &SplitResult{
		Split:          true,
		NeutralPath:    neutralPath,
		DevicePayloads: make(map[string]string, len(deviceBlobs)),
	}
	for arch, blob := range deviceBlobs {
		payloadPath := filepath.Join(outputDir, baseName+"."+arch+".kpak")
		writer := newDevicePayloadWriter()
		if err := writer.Add(baseName+"/"+arch, arch, blob); err != nil {
			return nil, err
		}
		if err := writer.WriteFile(payloadPath); err != nil {
			return nil, err
		}
		result.DevicePayloads[arch] = payloadPath
		result.Archs = append(result.Archs, arch)
	}
	sort.Strings(result.Archs)

	if err := writeFileDir(neutralPath, raw, info.Mode().Perm()); err != nil {
		return nil, err
	}
	return result, nil
}

// buildMarker serializes a KREF marker for the given payload key.
func buildMarker(key string) []byte {
	marker := make([]byte, markerHeaderSize+len(key))
	copy(marker[0:4], markerMagic[:])
	binary.LittleEndian.PutUint16(marker[4:6], markerVersion)
	binary.LittleEndian.PutUint64(marker[8:16], uint64(len(key)))
	copy(marker[markerHeaderSize:], key)
	return marker
}

// ReadMarker parses a KREF marker from the start of a stripped
// device-code region and returns the payload key. The second result
// is false when the region carries no marker.
func ReadMarker(region []byte) (string, bool) {
	if len(region) < markerHeaderSize || !bytes.Equal(region[0:4], markerMagic[:]) {
		return "", false
	}
	if binary.LittleEndian.Uint16(region[4:6]) != markerVersion {
		return "", false
	}
	keyLength := binary.LittleEndian.Uint64(region[8:16])
	if keyLength > uint64(len(region)-markerHeaderSize) {
		return "", false
	}
	return string(region[markerHeaderSize : markerHeaderSize+keyLength]), true
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func writeFileDir(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// UnsupportedBinaryFormatError reports a binary whose device-code
// blob could not be parsed. Carries the binary path: in a build with
// hundreds of binaries, "corrupt bundle" without a path is useless.
type UnsupportedBinaryFormatError struct {
	Path   string
	Reason string
}

func (e *UnsupportedBinaryFormatError) Error() string {
	return fmt.Sprintf("unsupported binary format in %s: %s", e.Path, e.Reason)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *UnsupportedBinaryFormatError) Class() string { return "BinaryFormatError" }
