// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package descriptor loads artifact slicing descriptors.
//
// A descriptor is a TOML file maintained by a component's authors. It
// declares, per slice component name ("lib", "dev", "run", "dbg",
// "doc", "test"), which install-tree paths belong to that component:
//
//	[components.lib]
//	include = ["lib/*.so"]
//
//	[components.dev]
//	include = ["include/**", "lib/*.a"]
//	exclude = ["include/internal/**"]
//
// Patterns are forward-slash globs matched against paths relative to
// the install root; "**" crosses directory boundaries. Descriptors
// are validated entirely at load time so a bad pattern fails the
// build before any slicing work starts.
package descriptor

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/quarry-build/quarry/lib/binhash"
)

// ComponentRules is the path-matching rule set for one slice
// component.
type ComponentRules struct {
	// Include globs select files relative to the install root.
	Include []string `toml:"include"`

	// Exclude globs remove files from the include set.
	Exclude []string `toml:"exclude"`

	// Optional marks components that may legitimately match nothing
	// (e.g. "dbg" on a build without separate debug info). Slicing a
	// non-optional component that matches zero files is still valid —
	// Optional only affects reporting.
	Optional bool `toml:"optional"`
}

// Descriptor is a validated slicing descriptor: a typed registry of
// component rules plus the raw content hash that feeds fingerprints.
type Descriptor struct {
	// Path is where the descriptor was loaded from, for diagnostics.
	Path string

	components  map[string]ComponentRules
	names       []string
	contentHash string
}

// descriptorFile mirrors the TOML layout.
type descriptorFile struct {
	Components map[string]ComponentRules `toml:"components"`
}

// Load reads, parses, and validates a descriptor file.
func Load(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidDescriptorError{Path: path, Reason: err.Error()}
	}
	descriptor, err := Parse(raw)
	if err != nil {
		if invalid, ok := err.(*InvalidDescriptorError); ok {
			invalid.Path = path
			return nil, invalid
		}
		return nil, err
	}
	descriptor.Path = path
	return descriptor, nil
}

// Parse validates descriptor content without touching the
// filesystem. Used by Load and by tests.
func Parse(raw []byte) (*Descriptor, error) {
	var file descriptorFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, &InvalidDescriptorError{Reason: fmt.Sprintf("parsing TOML: %v", err)}
	}
	if len(file.Components) == 0 {
		return nil, &InvalidDescriptorError{Reason: "descriptor declares no components"}
	}

	names := make([]string, 0, len(file.Components))
	for name, rules := range file.Components {
		if len(rules.Include) == 0 {
			return nil, &InvalidDescriptorError{
				Reason: fmt.Sprintf("component %q has no include patterns", name),
			}
		}
		for _, pattern := range append(append([]string{}, rules.Include...), rules.Exclude...) {
			if !doublestar.ValidatePattern(pattern) {
				return nil, &InvalidDescriptorError{
					Reason: fmt.Sprintf("component %q has invalid glob pattern %q", name, pattern),
				}
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	digest := binhash.HashBytes(raw, binhash.SHA256)
	return &Descriptor{
		components:  file.Components,
		names:       names,
		contentHash: binhash.FormatDigest(digest),
	}, nil
}

// Component returns the rules for a slice component. The second
// result is false when the descriptor does not declare it.
func (d *Descriptor) Component(name string) (ComponentRules, bool) {
	rules, ok := d.components[name]
	return rules, ok
}

// ComponentNames returns the declared component names, sorted.
func (d *Descriptor) ComponentNames() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}

// ContentHash returns the hex SHA-256 of the raw descriptor bytes.
// Any edit to the descriptor — even reordering rules — changes the
// hash and therefore invalidates downstream fingerprints.
func (d *Descriptor) ContentHash() string {
	return d.contentHash
}

// Matches reports whether relPath (forward-slash, relative to the
// install root) belongs to the named component: matched by at least
// one include pattern and no exclude pattern.
func (d *Descriptor) Matches(component, relPath string) bool {
	rules, ok := d.components[component]
	if !ok {
		return false
	}
	included := false
	for _, pattern := range rules.Include {
		// Patterns were validated at load time; Match cannot fail.
		if match, _ := doublestar.Match(pattern, relPath); match {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range rules.Exclude {
		if match, _ := doublestar.Match(pattern, relPath); match {
			return false
		}
	}
	return true
}

// InvalidDescriptorError reports a descriptor that failed load-time
// validation.
type InvalidDescriptorError struct {
	Path   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid descriptor: %s", e.Reason)
	}
	return fmt.Sprintf("invalid descriptor %s: %s", e.Path, e.Reason)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *InvalidDescriptorError) Class() string { return "ConfigurationError" }
