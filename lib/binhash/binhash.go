// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm selects the digest function used for archive sidecars and
// distribution collision checks. SHA256 is the default and matches
// the standard checksum-tool sidecar convention; BLAKE3 is offered
// for large archives where hashing throughput dominates.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm parses an algorithm name as given on the command
// line (--hash-algorithm).
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (supported: sha256, blake3)", name)
	}
}

// New returns a fresh hash.Hash for the algorithm. Both supported
// algorithms produce 32-byte digests.
func (a Algorithm) New() hash.Hash {
	switch a {
	case BLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// HashFile computes the digest of the file at path. The file is
// streamed through the hash function (via io.Copy) to keep memory
// usage constant regardless of file size.
func HashFile(path string, algorithm Algorithm) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := algorithm.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return [32]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashBytes computes the digest of data in memory.
func HashBytes(data []byte, algorithm Algorithm) [32]byte {
	hasher := algorithm.New()
	hasher.Write(data)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// FormatDigest returns the hex-encoded string representation of a
// digest. This is the canonical format used in sidecar files,
// fingerprints, and log output.
func FormatDigest(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}

// ParseDigest parses a hex-encoded digest string into a 32-byte
// array. Returns an error if the string is not a valid 64-character
// hex encoding of 32 bytes.
func ParseDigest(hexString string) ([32]byte, error) {
	var digest [32]byte
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("hash digest is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// WriteSidecar writes a checksum sidecar for filePath at sidecarPath
// in the standard checksum-tool format: the hex digest, two spaces,
// and the base name of the hashed file. Standard tools (sha256sum -c)
// can verify the result when the algorithm is SHA256.
func WriteSidecar(sidecarPath, filePath string, digest [32]byte) error {
	line := fmt.Sprintf("%s  %s\n", FormatDigest(digest), baseName(filePath))
	if err := os.WriteFile(sidecarPath, []byte(line), 0644); err != nil {
		return fmt.Errorf("writing checksum sidecar %s: %w", sidecarPath, err)
	}
	return nil
}

// ReadSidecar parses a checksum sidecar and returns the recorded
// digest and file name. Only the first line is examined; trailing
// content is ignored.
func ReadSidecar(sidecarPath string) ([32]byte, string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return [32]byte{}, "", fmt.Errorf("reading checksum sidecar %s: %w", sidecarPath, err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	hexDigest, name, found := strings.Cut(line, "  ")
	if !found {
		return [32]byte{}, "", fmt.Errorf("checksum sidecar %s is malformed (want \"<hex>  <name>\")", sidecarPath)
	}

	digest, err := ParseDigest(hexDigest)
	if err != nil {
		return [32]byte{}, "", fmt.Errorf("checksum sidecar %s: %w", sidecarPath, err)
	}
	return digest, name, nil
}

// baseName returns the final path element without importing
// path/filepath semantics for Windows separators: sidecars always
// record forward-slash-free base names.
func baseName(path string) string {
	if index := strings.LastIndexAny(path, `/\`); index >= 0 {
		return path[index+1:]
	}
	return path
}
