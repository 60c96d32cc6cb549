// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command dispatch framework for the quarry
// binary: a declarative command tree with pflag flag parsing, typo
// suggestions for unknown commands and flags, structured help output,
// and exit-code plumbing.
package cli
