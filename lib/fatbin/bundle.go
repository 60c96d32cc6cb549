// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fatbin

import (
	"encoding/binary"
	"strings"
)

// Offload bundle container: the nested format embedded in a fat
// binary's device-code sections. A bundle is a magic string, a u64
// little-endian entry count, then per entry a u64 offset (relative to
// the bundle start), u64 size, u64 id length, and the id bytes.
// Entry ids name a target: host entries ("host-x86_64-…") carry
// architecture-neutral code and stay in the binary; device entries
// ("hipv4-amdgcn-amd-amdhsa--gfx942") carry code for one
// architecture.
const bundleMagic = "__CLANG_OFFLOAD_BUNDLE__"

// deviceSectionName is the ELF section holding the embedded bundle.
const deviceSectionName = ".hip_fatbin"

// bundleEntry is one parsed bundle member.
type bundleEntry struct {
	id     string
	offset uint64 // relative to the bundle start
	size   uint64
}

// arch returns the device architecture named by the entry id, or ""
// for host entries. Device ids put the architecture after the last
// "--" separator; older toolchains used a single "-".
func (e bundleEntry) arch() string {
	if strings.HasPrefix(e.id, "host-") {
		return ""
	}
	if index := strings.LastIndex(e.id, "--"); index >= 0 {
		return e.id[index+2:]
	}
	if index := strings.LastIndexByte(e.id, '-'); index >= 0 {
		return e.id[index+1:]
	}
	return e.id
}

// parseBundle decodes an offload bundle blob. Every structural
// problem is reported with a reason so the caller can wrap it in an
// UnsupportedBinaryFormatError naming the binary.
func parseBundle(blob []byte) ([]bundleEntry, error) {
	if len(blob) < len(bundleMagic)+8 {
		return nil, bundleError("blob too small for bundle header")
	}
	if string(blob[:len(bundleMagic)]) != bundleMagic {
		return nil, bundleError("missing offload bundle magic")
	}

	cursor := uint64(len(bundleMagic))
	count := binary.LittleEndian.Uint64(blob[cursor:])
	cursor += 8

	// An absurd count means a corrupt header; bail before allocating.
	if count > uint64(len(blob)) {
		return nil, bundleError("entry count exceeds blob size")
	}

	entries := make([]bundleEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		if cursor+24 > uint64(len(blob)) {
			return nil, bundleError("truncated entry header")
		}
		offset := binary.LittleEndian.Uint64(blob[cursor:])
		size := binary.LittleEndian.Uint64(blob[cursor+8:])
		idLength := binary.LittleEndian.Uint64(blob[cursor+16:])
		cursor += 24

		if idLength > uint64(len(blob))-cursor {
			return nil, bundleError("truncated entry id")
		}
		id := string(blob[cursor : cursor+idLength])
		cursor += idLength

		// Subtraction form: offset+size can wrap around on crafted
		// input and slip past a sum comparison.
		if offset > uint64(len(blob)) || size > uint64(len(blob))-offset {
			return nil, bundleError("entry " + id + " extends outside the bundle")
		}

		entries = append(entries, bundleEntry{id: id, offset: offset, size: size})
	}

	if len(entries) == 0 {
		return nil, bundleError("bundle has no entries")
	}
	return entries, nil
}

type bundleError string

func (e bundleError) Error() string { return string(e) }

// appendBundle serializes entries and their blobs into offload bundle
// format. Used by tests and fixture tooling to build synthetic fat
// binaries; the layout matches what parseBundle expects.
func appendBundle(ids []string, blobs [][]byte) []byte {
	headerSize := uint64(len(bundleMagic)) + 8
	for _, id := range ids {
		headerSize += 24 + uint64(len(id))
	}

	var out []byte
	out = append(out, bundleMagic...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(ids)))

	offset := headerSize
	for i, id := range ids {
		out = binary.LittleEndian.AppendUint64(out, offset)
		out = binary.LittleEndian.AppendUint64(out, uint64(len(blobs[i])))
		out = binary.LittleEndian.AppendUint64(out, uint64(len(id)))
		out = append(out, id...)
		offset += uint64(len(blobs[i]))
	}
	for _, blob := range blobs {
		out = append(out, blob...)
	}
	return out
}
