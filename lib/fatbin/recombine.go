// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fatbin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quarry-build/quarry/lib/codec"
	"github.com/quarry-build/quarry/lib/kpak"
)

// newDevicePayloadWriter returns the standard writer for device
// payloads. Device code compresses acceptably with zstd; the writer
// falls back to storing raw when it does not.
func newDevicePayloadWriter() *kpak.Writer {
	return kpak.NewWriter(kpak.CompressionZstd)
}

// GroupingConfig maps named architecture groups to their member
// architectures. Several related architectures typically share one
// output package (e.g. a "dcgpu" group covering a whole family).
type GroupingConfig map[string][]string

// groupFor returns the group containing arch, or "" if none does.
func (g GroupingConfig) groupFor(arch string) string {
	for group, archs := range g {
		for _, member := range archs {
			if member == arch {
				return group
			}
		}
	}
	return ""
}

// archUnion returns the sorted union of all grouped architectures.
func (g GroupingConfig) archUnion() []string {
	seen := make(map[string]bool)
	for _, archs := range g {
		for _, arch := range archs {
			seen[arch] = true
		}
	}
	union := make([]string, 0, len(seen))
	for arch := range seen {
		union = append(union, arch)
	}
	sort.Strings(union)
	return union
}

// GroupManifest is the ".kpm" manifest written into each group tree,
// enumerating which kernels and architectures the group carries.
// Serialized as deterministic CBOR.
type GroupManifest struct {
	Group   string   `cbor:"group"`
	Archs   []string `cbor:"archs"`
	Kernels []string `cbor:"kernels"`
}

// GroupManifestName is the manifest file name within a group tree.
const GroupManifestName = "manifest.kpm"

// Recombine merges per-architecture device payloads back with their
// shared neutral payloads into one installable tree per group.
//
// For each group in grouping, all device payload blobs whose
// architecture belongs to the group are concatenated into a single
// per-group KPAK archive; every neutral payload is copied once into
// the group tree (byte-identical across groups); and a group
// manifest enumerates the kernels and architectures present.
//
// The union of architectures across all groups must equal targetArchs
// exactly — the set the original split extracted. A missing or
// unexpected architecture is a CompletenessError, not a warning: an
// incomplete recombination would ship packages that load on fewer
// devices than the build claims to support.
func Recombine(neutralPayloads []string, devicePayloads []string, grouping GroupingConfig, targetArchs []string, outputDir string) error {
	if err := checkCompleteness(grouping, targetArchs); err != nil {
		return err
	}

	// Collect every device blob, routed to its group.
	blobsByGroup := make(map[string][]deviceBlob)
	archsSeen := make(map[string]bool)

	for _, payloadPath := range devicePayloads {
		archive, err := kpak.Open(payloadPath)
		if err != nil {
			return err
		}
		for _, entry := range archive.Entries() {
			group := grouping.groupFor(entry.Arch)
			if group == "" {
				return &CompletenessError{
					Detail: fmt.Sprintf("device payload %s carries architecture %q not assigned to any group",
						payloadPath, entry.Arch),
				}
			}
			data, err := archive.Extract(entry.Key)
			if err != nil {
				return err
			}
			blobsByGroup[group] = append(blobsByGroup[group], deviceBlob{key: entry.Key, arch: entry.Arch, data: data})
			archsSeen[entry.Arch] = true
		}
	}

	// Every target architecture must actually have arrived from some
	// shard. Grouping alone being complete is not enough — a shard
	// that never ran leaves a hole the grouping cannot see.
	var missing []string
	for _, arch := range targetArchs {
		if !archsSeen[arch] {
			missing = append(missing, arch)
		}
	}
	if len(missing) > 0 {
		return &CompletenessError{
			Detail: fmt.Sprintf("no device payload provided architectures: %s", strings.Join(missing, ", ")),
		}
	}

	// Emit each group tree.
	groups := make([]string, 0, len(grouping))
	for group := range grouping {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	for _, group := range groups {
		groupDir := filepath.Join(outputDir, group)
		if err := os.MkdirAll(groupDir, 0755); err != nil {
			return fmt.Errorf("creating group directory %s: %w", groupDir, err)
		}

		groupBlobs := blobsByGroup[group]
		if len(groupBlobs) > 0 {
			writer := newDevicePayloadWriter()
			for _, b := range groupBlobs {
				if err := writer.Add(b.key, b.arch, b.data); err != nil {
					return fmt.Errorf("group %q: %w", group, err)
				}
			}
			if err := writer.WriteFile(filepath.Join(groupDir, "device.kpak")); err != nil {
				return fmt.Errorf("group %q: %w", group, err)
			}
		}

		for _, neutralPath := range neutralPayloads {
			if err := copyPayload(neutralPath, filepath.Join(groupDir, filepath.Base(neutralPath))); err != nil {
				return err
			}
		}

		if err := writeGroupManifest(groupDir, group, grouping[group], groupBlobs); err != nil {
			return err
		}
	}
	return nil
}

// deviceBlob is an extracted device-code blob in flight between its
// source payload and its group archive.
type deviceBlob struct {
	key  string
	arch string
	data []byte
}

func writeGroupManifest(groupDir, group string, archs []string, blobs []deviceBlob) error {
	manifest := GroupManifest{Group: group}
	manifest.Archs = append(manifest.Archs, archs...)
	sort.Strings(manifest.Archs)

	kernelSet := make(map[string]bool)
	for _, b := range blobs {
		kernelSet[b.key] = true
	}
	for kernel := range kernelSet {
		manifest.Kernels = append(manifest.Kernels, kernel)
	}
	sort.Strings(manifest.Kernels)

	encoded, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding group manifest for %q: %w", group, err)
	}
	path := filepath.Join(groupDir, GroupManifestName)
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("writing group manifest %s: %w", path, err)
	}
	return nil
}

// ReadGroupManifest decodes a ".kpm" group manifest.
func ReadGroupManifest(path string) (*GroupManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading group manifest %s: %w", path, err)
	}
	var manifest GroupManifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding group manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// checkCompleteness verifies the grouping covers targetArchs exactly.
func checkCompleteness(grouping GroupingConfig, targetArchs []string) error {
	union := grouping.archUnion()
	unionSet := make(map[string]bool, len(union))
	for _, arch := range union {
		unionSet[arch] = true
	}
	targetSet := make(map[string]bool, len(targetArchs))
	for _, arch := range targetArchs {
		targetSet[arch] = true
	}

	var missing, extra []string
	for _, arch := range targetArchs {
		if !unionSet[arch] {
			missing = append(missing, arch)
		}
	}
	for _, arch := range union {
		if !targetSet[arch] {
			extra = append(extra, arch)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	if len(missing) > 0 || len(extra) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing from grouping: "+strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			parts = append(parts, "grouped but not targeted: "+strings.Join(extra, ", "))
		}
		return &CompletenessError{Detail: strings.Join(parts, "; ")}
	}
	return nil
}

// copyPayload copies a payload file preserving its permission bits.
func copyPayload(source, destination string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("reading payload %s: %w", source, err)
	}
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat payload %s: %w", source, err)
	}
	if err := os.WriteFile(destination, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing payload %s: %w", destination, err)
	}
	return nil
}

// CompletenessError reports that the union of architectures across
// recombination groups does not equal the original split's target
// set, or that a payload carried an ungrouped architecture.
type CompletenessError struct {
	Detail string
}

func (e *CompletenessError) Error() string {
	return "architecture completeness violation: " + e.Detail
}

// Class returns the error taxonomy name printed by the CLI.
func (e *CompletenessError) Class() string { return "BinaryFormatError" }
