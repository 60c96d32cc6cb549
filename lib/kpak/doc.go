// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package kpak implements the KPAK split-archive container holding
// device code stripped out of fat binaries.
//
// Layout: a fixed 16-byte header (magic "KPAK", version,
// table-of-contents offset) zero-padded to a 64-byte boundary,
// followed by compressed per-kernel blobs, followed by a CBOR table
// of contents describing each blob's key, architecture, offset, and
// length. The TOC uses deterministic CBOR encoding and entries are
// sorted by key, so identical blob sets serialize identically apart
// from the compression streams.
package kpak
