// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes file and byte digests for archive
// sidecars, distribution collision checks, and fingerprint input
// hashing. SHA-256 is the default; BLAKE3 is available where hashing
// throughput matters more than checksum-tool compatibility.
package binhash
