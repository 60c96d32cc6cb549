// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"regexp"
)

// Node is a declared component: a named build unit with its slicing
// descriptor and dependency edges. Nodes are immutable after
// declaration; the build refers to them by name.
type Node struct {
	// Name uniquely identifies the component. Alphanumeric plus dash.
	Name string

	// DescriptorPath points at the component's artifact-slicing rules.
	DescriptorPath string

	// BuildDeps are components that must be built before this one.
	BuildDeps []string

	// RuntimeDeps are components required at run time. They
	// participate in implicit enabling but not in build ordering.
	RuntimeDeps []string

	// TargetNeutral marks components whose output is identical
	// regardless of hardware target. Their artifacts land in the
	// "generic" target family.
	TargetNeutral bool

	// Group is an optional feature group label used in the enable
	// report.
	Group string

	// Enabled marks whether the caller selected this component.
	// Finalize force-enables dependencies of enabled nodes.
	Enabled bool
}

// Graph accumulates component declarations for one build invocation.
// It is an explicit value threaded through registration calls, not
// process-global state, so concurrent builds and tests stay isolated.
type Graph struct {
	nodes map[string]*nodeState
	order []string // declaration order

	finalized bool
}

// nodeState wraps a Node with resolver bookkeeping.
type nodeState struct {
	node Node

	// implicitlyEnabled is set by Finalize when the node was enabled
	// only because an enabled node depends on it.
	implicitlyEnabled bool
}

var nodeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// New creates an empty build graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*nodeState)}
}

// Declare registers a component node. Dependencies must reference
// previously declared nodes: rejecting forward references makes the
// graph acyclic by construction order, so cycles can only be
// introduced by bugs in edge bookkeeping (which ResolveOrder still
// checks for).
func (g *Graph) Declare(node Node) error {
	if g.finalized {
		return fmt.Errorf("declaring %q: graph is already finalized", node.Name)
	}
	if !nodeNamePattern.MatchString(node.Name) {
		return fmt.Errorf("component name %q is invalid (want alphanumeric plus dash)", node.Name)
	}
	if _, exists := g.nodes[node.Name]; exists {
		return &DuplicateNodeError{Name: node.Name}
	}

	for _, dep := range node.BuildDeps {
		if _, exists := g.nodes[dep]; !exists {
			return &UnknownDependencyError{Node: node.Name, Dependency: dep, Kind: "build"}
		}
	}
	for _, dep := range node.RuntimeDeps {
		if _, exists := g.nodes[dep]; !exists {
			return &UnknownDependencyError{Node: node.Name, Dependency: dep, Kind: "runtime"}
		}
	}

	g.nodes[node.Name] = &nodeState{node: node}
	g.order = append(g.order, node.Name)
	return nil
}

// Node returns the declared node by name. The second result is false
// if no such node was declared.
func (g *Graph) Node(name string) (Node, bool) {
	state, ok := g.nodes[name]
	if !ok {
		return Node{}, false
	}
	return state.node, true
}

// Names returns all declared node names in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// Finalize walks all declared nodes in reverse declaration order and,
// for every enabled node, force-enables any declared dependency that
// is not yet enabled. Reverse order guarantees that by the time a
// node is visited, everything that could enable it has already been
// processed, so one pass suffices. Enabling a feature therefore
// transitively enables its prerequisites without the caller wiring
// them up manually.
//
// Finalize returns the enable report and seals the graph against
// further declarations.
func (g *Graph) Finalize() *EnableReport {
	for i := len(g.order) - 1; i >= 0; i-- {
		state := g.nodes[g.order[i]]
		if !state.node.Enabled {
			continue
		}
		for _, dep := range state.node.BuildDeps {
			g.enableDependency(dep)
		}
		for _, dep := range state.node.RuntimeDeps {
			g.enableDependency(dep)
		}
	}

	g.finalized = true

	report := &EnableReport{}
	for _, name := range g.order {
		state := g.nodes[name]
		report.Entries = append(report.Entries, EnableEntry{
			Name:              name,
			Group:             state.node.Group,
			Enabled:           state.node.Enabled,
			ImplicitlyEnabled: state.implicitlyEnabled,
		})
	}
	return report
}

func (g *Graph) enableDependency(name string) {
	state := g.nodes[name]
	if state.node.Enabled {
		return
	}
	state.node.Enabled = true
	state.implicitlyEnabled = true
}

// ResolveOrder returns a topological build ordering over the enabled
// nodes using Kahn's algorithm. The order is deterministic: nodes at
// the same topological depth appear in declaration order. Only build
// dependencies constrain ordering; runtime dependencies are an
// install-time concern.
//
// Returns CycleDetectedError naming every cycle member if the edge
// set is cyclic, and UnknownDependencyError if an edge references an
// undeclared node.
func (g *Graph) ResolveOrder() ([]string, error) {
	var enabled []string
	for _, name := range g.order {
		if g.nodes[name].node.Enabled {
			enabled = append(enabled, name)
		}
	}

	inDegree := make(map[string]int, len(enabled))
	dependents := make(map[string][]string, len(enabled))
	for _, name := range enabled {
		inDegree[name] = 0
	}
	for _, name := range enabled {
		for _, dep := range g.nodes[name].node.BuildDeps {
			depState, ok := g.nodes[dep]
			if !ok {
				return nil, &UnknownDependencyError{Node: name, Dependency: dep, Kind: "build"}
			}
			if !depState.node.Enabled {
				// Finalize enables dependencies of enabled nodes, so an
				// enabled node with a disabled dependency means the
				// caller skipped Finalize.
				return nil, fmt.Errorf("resolving order: %q depends on disabled %q (was Finalize called?)", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	queue := make([]string, 0, len(enabled))
	for _, name := range enabled {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(enabled))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(enabled) {
		var cycle []string
		for _, name := range enabled {
			if inDegree[name] > 0 {
				cycle = append(cycle, name)
			}
		}
		return nil, &CycleDetectedError{Members: cycle}
	}

	return result, nil
}
