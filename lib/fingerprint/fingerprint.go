// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/quarry-build/quarry/lib/binhash"
)

// Fingerprint captures a slice's identity plus its transitive
// dependency state. A fingerprint is either valid (a SHA-256 hex
// digest) or invalid. Invalid fingerprints must always be treated as
// "rebuild/repackage" — they are never cached and never compare equal
// to anything, including another invalid fingerprint.
type Fingerprint struct {
	valid bool
	hex   string
}

// Invalid is the zero fingerprint: not a hash, never equal.
var Invalid = Fingerprint{}

// Valid reports whether the fingerprint carries a hash.
func (f Fingerprint) Valid() bool { return f.valid }

// Hex returns the digest as a 64-character hex string. Empty for
// invalid fingerprints.
func (f Fingerprint) Hex() string {
	if !f.valid {
		return ""
	}
	return f.hex
}

// Equal reports whether two fingerprints are both valid and carry
// the same digest. An invalid fingerprint equals nothing.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.valid && other.valid && f.hex == other.hex
}

// String renders the fingerprint for logs: the digest, or "invalid".
func (f Fingerprint) String() string {
	if !f.valid {
		return "invalid"
	}
	return f.hex
}

// FromHex constructs a valid fingerprint from a 64-character hex
// digest, as read back from a sidecar.
func FromHex(hexDigest string) (Fingerprint, error) {
	if _, err := binhash.ParseDigest(hexDigest); err != nil {
		return Invalid, fmt.Errorf("parsing fingerprint: %w", err)
	}
	return Fingerprint{valid: true, hex: hexDigest}, nil
}

// Compute derives the fingerprint of a slice from its name, the hash
// of its descriptor content, and the fingerprints of its declared
// dependencies.
//
// If any dependency fingerprint is invalid, the result is Invalid —
// never a hash. Otherwise the result is the SHA-256 of a canonical
// concatenation: the slice identity line, the descriptor line, then
// one line per dependency sorted lexicographically by name. Sorting
// is mandatory: Go map iteration order must never leak into the
// digest. The function is pure; it performs no I/O.
func Compute(sliceName string, descriptorHash string, deps map[string]Fingerprint) Fingerprint {
	for _, dep := range deps {
		if !dep.Valid() {
			return Invalid
		}
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var preimage strings.Builder
	fmt.Fprintf(&preimage, "ARTIFACT=%s\n", sliceName)
	fmt.Fprintf(&preimage, "DESCRIPTOR=%s\n", descriptorHash)
	for _, name := range names {
		fmt.Fprintf(&preimage, "%s=%s\n", name, deps[name].Hex())
	}

	digest := sha256.Sum256([]byte(preimage.String()))
	return Fingerprint{valid: true, hex: binhash.FormatDigest(digest)}
}

// HashDescriptor reads the descriptor file and returns the hex
// SHA-256 of its raw content. This is the only I/O in the fingerprint
// path.
func HashDescriptor(path string) (string, error) {
	digest, err := binhash.HashFile(path, binhash.SHA256)
	if err != nil {
		return "", fmt.Errorf("hashing descriptor: %w", err)
	}
	return binhash.FormatDigest(digest), nil
}

// SidecarPath returns the fingerprint sidecar path for a slice
// directory: "<dir>.fprint".
func SidecarPath(sliceDir string) string {
	return strings.TrimRight(sliceDir, "/") + ".fprint"
}

// WriteSidecar records the fingerprint next to the slice directory.
// An invalid fingerprint removes any existing sidecar instead: a
// stale sidecar would let a later run wrongly skip repackaging.
func WriteSidecar(sliceDir string, fp Fingerprint) error {
	path := SidecarPath(sliceDir)
	if !fp.Valid() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale fingerprint %s: %w", path, err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(fp.Hex()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing fingerprint %s: %w", path, err)
	}
	return nil
}

// ReadSidecar returns the fingerprint recorded for a slice
// directory, or Invalid if no sidecar exists or it is unreadable.
// Unreadable sidecars are deliberately not errors: the worst outcome
// of Invalid is one unnecessary repackage.
func ReadSidecar(sliceDir string) Fingerprint {
	data, err := os.ReadFile(SidecarPath(sliceDir))
	if err != nil {
		return Invalid
	}
	fp, err := FromHex(strings.TrimSpace(string(data)))
	if err != nil {
		return Invalid
	}
	return fp
}
