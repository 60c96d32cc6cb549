// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"
)

// DuplicateNodeError reports a component declared twice.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("component %q is already declared", e.Name)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *DuplicateNodeError) Class() string { return "DuplicateNodeError" }

// UnknownDependencyError reports an edge referencing a component that
// was never declared (or not yet declared — forward references are
// rejected).
type UnknownDependencyError struct {
	Node       string
	Dependency string
	Kind       string // "build" or "runtime"
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("component %q declares %s dependency on undeclared component %q",
		e.Node, e.Kind, e.Dependency)
}

func (e *UnknownDependencyError) Class() string { return "UnknownDependencyError" }

// CycleDetectedError reports a dependency cycle. Members lists every
// node still blocked when ordering stalled — enough to identify the
// cycle in a multi-hundred-component build.
type CycleDetectedError struct {
	Members []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("dependency cycle detected among: %s", strings.Join(e.Members, ", "))
}

func (e *CycleDetectedError) Class() string { return "CycleDetectedError" }
