// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package fatbin splits fat binaries into architecture-neutral and
// per-architecture payloads, and recombines them into installable
// group trees.
//
// A fat binary embeds device code for several architectures in an
// offload-bundle section. Split extracts each architecture's blob
// into a KPAK payload and replaces the embedded bundle with a
// same-size zero-filled placeholder carrying a KREF reference
// marker, so section offsets never move. Recombine merges payloads
// from independent per-architecture build shards back with the
// shared neutral binary, one tree per configured architecture group.
package fatbin
