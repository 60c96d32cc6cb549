// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the build invocation configuration.
//
// Configuration is loaded from a single YAML file specified by:
//   - QUARRY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery, and environment
// variables never override config values. This keeps a build's
// inputs deterministic and auditable — fingerprints derived from the
// configuration are only trustworthy if nothing hidden can change it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quarry-build/quarry/lib/binhash"
	"github.com/quarry-build/quarry/lib/graph"
	"github.com/quarry-build/quarry/lib/target"
)

// Config is the master configuration for one build invocation.
type Config struct {
	// Components declares the build units in dependency order
	// (dependencies must be declared before their dependents).
	Components []ComponentConfig `yaml:"components"`

	// TargetFamilies declares the hardware target families this
	// build knows about.
	TargetFamilies []FamilyConfig `yaml:"target_families"`

	// SelectedFamilies names the families this invocation builds
	// for. Target-neutral components ignore the selection.
	SelectedFamilies []string `yaml:"selected_families"`

	// BundleName overrides dist bundle resolution when several
	// families are selected at once.
	BundleName string `yaml:"bundle_name"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Packaging configures archive defaults.
	Packaging PackagingConfig `yaml:"packaging"`
}

// ComponentConfig declares one component node.
type ComponentConfig struct {
	Name          string   `yaml:"name"`
	Descriptor    string   `yaml:"descriptor"`
	Deps          []string `yaml:"deps"`
	RuntimeDeps   []string `yaml:"runtime_deps"`
	TargetNeutral bool     `yaml:"target_neutral"`
	Group         string   `yaml:"group"`
	Enabled       bool     `yaml:"enabled"`
}

// FamilyConfig declares one target family.
type FamilyConfig struct {
	Name    string   `yaml:"name"`
	Targets []string `yaml:"targets"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// BuildDir holds per-component install trees
	// (<build_dir>/<component>/install).
	BuildDir string `yaml:"build_dir"`

	// ArtifactsDir holds slice directories, archives, and sidecars.
	ArtifactsDir string `yaml:"artifacts_dir"`

	// DistDir is where composed distributions are written.
	DistDir string `yaml:"dist_dir"`
}

// PackagingConfig configures archive defaults.
type PackagingConfig struct {
	// CompressionLevel is the xz level for target-neutral archives;
	// architecture-specific archives always use level 1.
	CompressionLevel int `yaml:"compression_level"`

	// HashAlgorithm selects the sidecar digest ("sha256" or
	// "blake3").
	HashAlgorithm string `yaml:"hash_algorithm"`
}

// Default returns the base configuration merged under the loaded
// file. These exist to give every field a sensible zero value; the
// config file itself is required.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			BuildDir:     "build",
			ArtifactsDir: filepath.Join("build", "artifacts"),
			DistDir:      filepath.Join("build", "dist"),
		},
		Packaging: PackagingConfig{
			CompressionLevel: 6,
			HashAlgorithm:    string(binhash.SHA256),
		},
	}
}

// Load loads configuration from the QUARRY_CONFIG environment
// variable. This is the only way to load without an explicit path.
func Load() (*Config, error) {
	configPath := os.Getenv("QUARRY_CONFIG")
	if configPath == "" {
		return nil, &InvalidConfigError{Reason: "QUARRY_CONFIG environment variable not set; " +
			"set it to the path of your quarry.yaml config file, or use the --config flag"}
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path and
// validates it.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidConfigError{Path: path, Reason: err.Error()}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &InvalidConfigError{Path: path, Reason: fmt.Sprintf("parsing YAML: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &InvalidConfigError{Path: path, Reason: err.Error()}
	}
	return cfg, nil
}

// Validate checks the configuration for errors, reporting all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Components) == 0 {
		errs = append(errs, fmt.Errorf("at least one component is required"))
	}
	for _, component := range c.Components {
		if component.Name == "" {
			errs = append(errs, fmt.Errorf("component with empty name"))
		}
		if component.Descriptor == "" {
			errs = append(errs, fmt.Errorf("component %q has no descriptor path", component.Name))
		}
	}

	if c.Paths.BuildDir == "" {
		errs = append(errs, fmt.Errorf("paths.build_dir is required"))
	}
	if c.Paths.ArtifactsDir == "" {
		errs = append(errs, fmt.Errorf("paths.artifacts_dir is required"))
	}

	if c.Packaging.CompressionLevel < 0 || c.Packaging.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("packaging.compression_level must be 0-9, got %d", c.Packaging.CompressionLevel))
	}
	if _, err := binhash.ParseAlgorithm(c.Packaging.HashAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("packaging.hash_algorithm: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BuildGraph declares every configured component into a fresh build
// graph. Declaration order is the file order, so forward dependency
// references fail exactly as they would in hand-written registration.
func (c *Config) BuildGraph() (*graph.Graph, error) {
	buildGraph := graph.New()
	for _, component := range c.Components {
		err := buildGraph.Declare(graph.Node{
			Name:           component.Name,
			DescriptorPath: component.Descriptor,
			BuildDeps:      component.Deps,
			RuntimeDeps:    component.RuntimeDeps,
			TargetNeutral:  component.TargetNeutral,
			Group:          component.Group,
			Enabled:        component.Enabled,
		})
		if err != nil {
			return nil, err
		}
	}
	return buildGraph, nil
}

// TargetRegistry builds the validated family registry.
func (c *Config) TargetRegistry() (*target.Registry, error) {
	families := make([]target.Family, 0, len(c.TargetFamilies))
	for _, family := range c.TargetFamilies {
		families = append(families, target.Family{Name: family.Name, Targets: family.Targets})
	}
	return target.NewRegistry(families)
}

// HashAlgorithm returns the validated sidecar digest algorithm.
func (c *Config) HashAlgorithm() binhash.Algorithm {
	algorithm, err := binhash.ParseAlgorithm(c.Packaging.HashAlgorithm)
	if err != nil {
		// Validate rejects unknown algorithms at load time.
		return binhash.SHA256
	}
	return algorithm
}

// InvalidConfigError reports an unloadable or invalid configuration.
// Always fatal before any build work proceeds: a build that cannot
// be planned correctly must not start.
type InvalidConfigError struct {
	Path   string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Path, e.Reason)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *InvalidConfigError) Class() string { return "ConfigurationError" }
