// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package target resolves hardware target families and bundle names.
//
// A family is a named grouping of concrete architecture identifiers
// (e.g. "gfx94X-dcgpu" expanding to gfx940, gfx941, gfx942). Families
// disambiguate artifact directory names when the same component is
// built once per architecture set. The reserved family "generic"
// holds output from target-neutral components.
package target

import (
	"fmt"
	"sort"
	"strings"
)

// GenericFamily is the reserved family name for target-neutral
// artifacts.
const GenericFamily = "generic"

// Family is a named set of concrete hardware architectures.
type Family struct {
	// Name is the family identifier used in artifact directory and
	// archive names.
	Name string

	// Targets are the concrete architecture strings, in build order.
	Targets []string
}

// Registry holds the declared families for a build invocation,
// validated at load time. Lookups return a typed not-found result.
type Registry struct {
	families map[string]Family
	order    []string
}

// NewRegistry validates and indexes the given families. Family names
// must be unique and non-empty; "generic" may not be redeclared (it
// is implicit and has no concrete targets); every family must expand
// to at least one architecture.
func NewRegistry(families []Family) (*Registry, error) {
	registry := &Registry{families: make(map[string]Family, len(families))}
	for _, family := range families {
		if family.Name == "" {
			return nil, &UnknownFamilyError{Name: "", Detail: "family with empty name"}
		}
		if family.Name == GenericFamily {
			return nil, fmt.Errorf("family name %q is reserved for target-neutral artifacts", GenericFamily)
		}
		if len(family.Targets) == 0 {
			return nil, fmt.Errorf("family %q expands to no architectures", family.Name)
		}
		if _, exists := registry.families[family.Name]; exists {
			return nil, fmt.Errorf("family %q declared twice", family.Name)
		}
		registry.families[family.Name] = family
		registry.order = append(registry.order, family.Name)
	}
	return registry, nil
}

// Family looks up a family by name.
func (r *Registry) Family(name string) (Family, bool) {
	family, ok := r.families[name]
	return family, ok
}

// Names returns all declared family names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Expand returns the union of concrete architectures for the selected
// family names, deduplicated and sorted. Unknown names are an
// UnknownFamilyError.
func (r *Registry) Expand(selected []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, name := range selected {
		family, ok := r.families[name]
		if !ok {
			return nil, &UnknownFamilyError{Name: name, Detail: "not declared in target configuration"}
		}
		for _, arch := range family.Targets {
			seen[arch] = true
		}
	}
	archs := make([]string, 0, len(seen))
	for arch := range seen {
		archs = append(archs, arch)
	}
	sort.Strings(archs)
	return archs, nil
}

// DistBundle resolves the single bundle name that labels this build's
// distribution artifacts. With one selected family, that family's
// name is the bundle name. With several, the build is ambiguous and
// the caller must pass an explicit override — guessing would make
// artifact names (and therefore fingerprints of anything derived from
// them) depend on selection order.
func (r *Registry) DistBundle(selected []string, override string) (string, error) {
	for _, name := range selected {
		if _, ok := r.families[name]; !ok {
			return "", &UnknownFamilyError{Name: name, Detail: "not declared in target configuration"}
		}
	}

	if override != "" {
		return override, nil
	}

	switch len(selected) {
	case 0:
		return "", &AmbiguousBundleError{Selected: nil}
	case 1:
		return selected[0], nil
	default:
		return "", &AmbiguousBundleError{Selected: selected}
	}
}

// SliceDirName returns the directory (and archive stem) name for an
// artifact slice: "<artifact>_<component>_<family>". This naming is
// what makes concurrent slicing trivially safe: no two (artifact,
// component, family) tuples share an output path.
func SliceDirName(artifact, component, family string) string {
	return artifact + "_" + component + "_" + family
}

// ParseSliceDirName splits a slice directory name back into its
// (artifact, component, family) tuple. Artifact names may themselves
// contain underscores; component and family may not, so parsing is
// anchored at the right.
func ParseSliceDirName(name string) (artifact, component, family string, ok bool) {
	name = strings.TrimSuffix(name, ".tar.xz")
	lastUnderscore := strings.LastIndexByte(name, '_')
	if lastUnderscore <= 0 {
		return "", "", "", false
	}
	family = name[lastUnderscore+1:]
	rest := name[:lastUnderscore]
	secondUnderscore := strings.LastIndexByte(rest, '_')
	if secondUnderscore <= 0 {
		return "", "", "", false
	}
	return rest[:secondUnderscore], rest[secondUnderscore+1:], family, true
}

// UnknownFamilyError reports a target family name with no
// declaration.
type UnknownFamilyError struct {
	Name   string
	Detail string
}

func (e *UnknownFamilyError) Error() string {
	return fmt.Sprintf("unknown target family %q: %s", e.Name, e.Detail)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *UnknownFamilyError) Class() string { return "ConfigurationError" }

// AmbiguousBundleError reports a build whose dist bundle name cannot
// be resolved: zero or several selected families and no explicit
// override.
type AmbiguousBundleError struct {
	Selected []string
}

func (e *AmbiguousBundleError) Error() string {
	if len(e.Selected) == 0 {
		return "no target family selected and no bundle name override given"
	}
	return fmt.Sprintf("multiple target families selected (%s) without an explicit bundle name override",
		strings.Join(e.Selected, ", "))
}

func (e *AmbiguousBundleError) Class() string { return "ConfigurationError" }
