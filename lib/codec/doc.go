// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quarry's standard CBOR encoding.
//
// All binary metadata (split-archive tables of contents, group
// manifests) uses CBOR with Core Deterministic Encoding so that
// identical logical content always serializes to identical bytes.
package codec
