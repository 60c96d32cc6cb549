// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives fingerprint-gated slicing and archiving
// across a resolved build order.
//
// Each component is processed once its dependencies' fingerprints
// are known: its install tree is sliced per its descriptor, each
// slice is fingerprinted against the transitive dependency state,
// and unchanged slices are skipped. Independent components run
// concurrently under a bounded worker pool; slice output directories
// are distinct by naming, so the pipeline needs no locking around
// the filesystem, only around the shared fingerprint table.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-build/quarry/lib/archive"
	"github.com/quarry-build/quarry/lib/config"
	"github.com/quarry-build/quarry/lib/descriptor"
	"github.com/quarry-build/quarry/lib/fingerprint"
	"github.com/quarry-build/quarry/lib/graph"
	"github.com/quarry-build/quarry/lib/slicer"
	"github.com/quarry-build/quarry/lib/target"
)

// Pipeline is one packaging run over a configured build.
type Pipeline struct {
	config *config.Config
	logger *slog.Logger

	// hooks run against each freshly sliced directory before
	// archiving (external install patchers — SONAME/RPATH rewriters
	// and the like).
	hooks []slicer.Hook

	// workers bounds concurrent component processing. Zero means
	// runtime.NumCPU().
	workers int

	mu           sync.Mutex
	fingerprints map[string]fingerprint.Fingerprint
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHook adds a post-processing hook.
func WithHook(hook slicer.Hook) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, hook) }
}

// WithWorkers overrides the worker pool size.
func WithWorkers(workers int) Option {
	return func(p *Pipeline) { p.workers = workers }
}

// New creates a pipeline for the given configuration.
func New(cfg *config.Config, logger *slog.Logger, options ...Option) *Pipeline {
	p := &Pipeline{
		config:       cfg,
		logger:       logger,
		fingerprints: make(map[string]fingerprint.Fingerprint),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// ComponentResult reports the outcome for one component.
type ComponentResult struct {
	Component string
	Family    string

	// Archived and Skipped list slice directory names.
	Archived []string
	Skipped  []string

	// Err is the component's failure, if any. One component failing
	// does not stop independent components.
	Err error
}

// Report is the full pipeline outcome in build order.
type Report struct {
	Results []ComponentResult
}

// Failed returns the results that carry errors.
func (r *Report) Failed() []ComponentResult {
	var failed []ComponentResult
	for _, result := range r.Results {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}
	return failed
}

// Run executes the pipeline: resolve the build order, then process
// every enabled component as soon as its dependencies have reported
// fingerprints. The returned error covers planning failures only;
// per-component failures are in the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	buildGraph, err := p.config.BuildGraph()
	if err != nil {
		return nil, err
	}
	buildGraph.Finalize()
	order, err := buildGraph.ResolveOrder()
	if err != nil {
		return nil, err
	}

	registry, err := p.config.TargetRegistry()
	if err != nil {
		return nil, err
	}
	distBundle, err := registry.DistBundle(p.config.SelectedFamilies, p.config.BundleName)
	if err != nil {
		return nil, err
	}

	// done[name] closes when the component's fingerprint is
	// recorded, successfully or not. Dependents block on it.
	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		done[name] = make(chan struct{})
	}

	results := make([]ComponentResult, len(order))

	workers := p.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, name := range order {
		i, name := i, name
		node, _ := buildGraph.Node(name)
		group.Go(func() error {
			defer close(done[name])

			for _, dep := range node.BuildDeps {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			result := p.processComponent(node, distBundle)
			results[i] = result
			p.recordFingerprint(node, result)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Report{Results: results}, nil
}

// recordFingerprint publishes the component's fingerprint for its
// dependents. A failed component publishes Invalid, which poisons
// dependent fingerprints into "always repackage" — never "unchanged".
func (p *Pipeline) recordFingerprint(node graph.Node, result ComponentResult) {
	fp := fingerprint.Invalid
	if result.Err == nil {
		descriptorHash, err := fingerprint.HashDescriptor(node.DescriptorPath)
		if err == nil {
			fp = fingerprint.Compute(node.Name, descriptorHash, p.dependencyFingerprints(node))
		}
	}
	p.mu.Lock()
	p.fingerprints[node.Name] = fp
	p.mu.Unlock()
}

// dependencyFingerprints snapshots the recorded fingerprints of a
// node's dependencies. Missing entries (dependency disabled or not
// yet processed) appear as Invalid.
func (p *Pipeline) dependencyFingerprints(node graph.Node) map[string]fingerprint.Fingerprint {
	deps := make(map[string]fingerprint.Fingerprint, len(node.BuildDeps))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dep := range node.BuildDeps {
		deps[dep] = p.fingerprints[dep]
	}
	return deps
}

// processComponent slices, fingerprints, and archives one
// component's install tree.
func (p *Pipeline) processComponent(node graph.Node, distBundle string) ComponentResult {
	family := distBundle
	if node.TargetNeutral {
		family = target.GenericFamily
	}
	result := ComponentResult{Component: node.Name, Family: family}

	desc, err := descriptor.Load(node.DescriptorPath)
	if err != nil {
		result.Err = err
		return result
	}
	depFingerprints := p.dependencyFingerprints(node)

	installDir := filepath.Join(p.config.Paths.BuildDir, node.Name, "install")
	if _, err := os.Stat(installDir); err != nil {
		result.Err = fmt.Errorf("component %q has no install tree at %s: %w", node.Name, installDir, err)
		return result
	}

	// Decide per slice whether anything needs doing, before touching
	// the filesystem. Skip decisions come from fingerprints alone.
	type sliceWork struct {
		component string
		dirName   string
		dir       string
		fp        fingerprint.Fingerprint
	}
	var stale []sliceWork
	outputs := make(map[string]string)

	for _, component := range desc.ComponentNames() {
		dirName := target.SliceDirName(node.Name, component, family)
		sliceDir := filepath.Join(p.config.Paths.ArtifactsDir, dirName)
		fp := fingerprint.Compute(dirName, desc.ContentHash(), depFingerprints)

		if fp.Valid() && fp.Equal(fingerprint.ReadSidecar(sliceDir)) && archiveExists(sliceDir) {
			p.logger.Info("slice unchanged, skipping", "slice", dirName)
			result.Skipped = append(result.Skipped, dirName)
			continue
		}
		outputs[component] = sliceDir
		stale = append(stale, sliceWork{component: component, dirName: dirName, dir: sliceDir, fp: fp})
	}
	if len(stale) == 0 {
		return result
	}

	p.logger.Info("slicing component", "component", node.Name, "family", family, "slices", len(stale))
	if _, err := slicer.Slice(installDir, desc, outputs); err != nil {
		result.Err = err
		return result
	}

	for _, work := range stale {
		for _, hook := range p.hooks {
			if err := hook(work.dir); err != nil {
				result.Err = fmt.Errorf("post-processing hook on %s: %w", work.dirName, err)
				return result
			}
		}

		archivePath := work.dir + archive.Suffix
		err := archive.Write(work.dir, archivePath, archive.Options{
			CompressionLevel: archive.LevelFor(family, p.config.Packaging.CompressionLevel),
			HashFile:         archivePath + ".sha256sum",
			HashAlgorithm:    p.config.HashAlgorithm(),
		})
		if err != nil {
			result.Err = err
			return result
		}
		if err := fingerprint.WriteSidecar(work.dir, work.fp); err != nil {
			result.Err = err
			return result
		}
		p.logger.Info("archived slice", "slice", work.dirName, "fingerprint", work.fp)
		result.Archived = append(result.Archived, work.dirName)
	}

	sort.Strings(result.Archived)
	sort.Strings(result.Skipped)
	return result
}

func archiveExists(sliceDir string) bool {
	_, err := os.Stat(sliceDir + archive.Suffix)
	return err == nil
}
