// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive serializes artifact slices into tar.xz archives
// with checksum sidecars.
//
// Archives contain exactly the files listed in the slice manifest, in
// manifest order. The member list is therefore byte-stable across
// runs with identical input; the compression stream itself is not
// guaranteed byte-identical, which is why skip decisions come from
// fingerprints rather than archive hashes.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/quarry-build/quarry/lib/binhash"
	"github.com/quarry-build/quarry/lib/slicer"
	"github.com/quarry-build/quarry/lib/target"
)

// Suffix is appended to a slice directory name to form its archive
// name.
const Suffix = ".tar.xz"

// Options configures archive writing.
type Options struct {
	// CompressionLevel maps to the xz dictionary size, 0 (fastest)
	// through 9 (smallest). Values outside the range are clamped.
	CompressionLevel int

	// HashFile is where the archive content digest sidecar is
	// written. Empty means no sidecar.
	HashFile string

	// HashAlgorithm selects the sidecar digest. Zero value is SHA256.
	HashAlgorithm binhash.Algorithm
}

// Write archives the slice at sliceDir to outPath. The slice's
// manifest drives the member list: every manifested file must exist
// (a missing file is a MissingArtifactFileError — partial archives
// are never produced), the manifest itself is included first so
// extraction can reproduce the slice exactly, and nothing else is
// picked up from the directory.
//
// The archive is written to a temporary file and renamed into place,
// so a failed run leaves no partial archive behind.
func Write(sliceDir, outPath string, options Options) error {
	relPaths, err := slicer.ReadManifest(sliceDir)
	if err != nil {
		return err
	}
	for _, relPath := range relPaths {
		if _, err := os.Lstat(filepath.Join(sliceDir, filepath.FromSlash(relPath))); err != nil {
			return &MissingArtifactFileError{SliceDir: sliceDir, RelPath: relPath}
		}
	}

	if options.HashAlgorithm == "" {
		options.HashAlgorithm = binhash.SHA256
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".quarry-archive-*")
	if err != nil {
		return fmt.Errorf("creating temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeTarXZ(tmp, sliceDir, relPaths, options.CompressionLevel); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("renaming archive into place: %w", err)
	}

	if options.HashFile != "" {
		digest, err := binhash.HashFile(outPath, options.HashAlgorithm)
		if err != nil {
			return err
		}
		if err := binhash.WriteSidecar(options.HashFile, outPath, digest); err != nil {
			return err
		}
	}
	return nil
}

func writeTarXZ(w io.Writer, sliceDir string, relPaths []string, level int) error {
	xzWriter, err := xz.WriterConfig{DictCap: dictCapForLevel(level)}.NewWriter(w)
	if err != nil {
		return fmt.Errorf("initializing xz writer: %w", err)
	}
	tarWriter := tar.NewWriter(xzWriter)

	// The manifest goes in first so extraction recreates a valid
	// slice directory.
	manifestPath := filepath.Join(sliceDir, slicer.ManifestName)
	if err := addMember(tarWriter, manifestPath, slicer.ManifestName); err != nil {
		return err
	}
	for _, relPath := range relPaths {
		source := filepath.Join(sliceDir, filepath.FromSlash(relPath))
		if err := addMember(tarWriter, source, relPath); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finalizing tar stream: %w", err)
	}
	if err := xzWriter.Close(); err != nil {
		return fmt.Errorf("finalizing xz stream: %w", err)
	}
	return nil
}

// addMember writes one file or symlink to the tar stream. Headers
// are normalized — epoch timestamps, zero owner — so the member list
// depends only on slice content.
func addMember(tarWriter *tar.Writer, source, name string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	header := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		ModTime: time.Unix(0, 0),
	}

	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := os.Readlink(source)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", source, err)
		}
		header.Typeflag = tar.TypeSymlink
		header.Linkname = linkTarget
		return tarWriter.WriteHeader(header)
	}

	header.Typeflag = tar.TypeReg
	header.Size = info.Size()
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", name, err)
	}

	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source, err)
	}
	defer file.Close()
	if _, err := io.Copy(tarWriter, file); err != nil {
		return fmt.Errorf("writing %s to archive: %w", name, err)
	}
	return nil
}

// Extract unpacks an archive produced by Write into destDir. Member
// paths are validated against directory escapes before anything is
// written.
func Extract(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("initializing xz reader for %s: %w", archivePath, err)
	}
	tarReader := tar.NewReader(xzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive %s: %w", archivePath, err)
		}

		if !filepath.IsLocal(filepath.FromSlash(header.Name)) {
			return fmt.Errorf("archive %s contains non-local member path %q", archivePath, header.Name)
		}
		destination := filepath.Join(destDir, filepath.FromSlash(header.Name))
		if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeSymlink:
			if err := os.Remove(destination); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("replacing %s: %w", header.Name, err)
			}
			if err := os.Symlink(header.Linkname, destination); err != nil {
				return fmt.Errorf("extracting symlink %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("creating %s: %w", header.Name, err)
			}
			if _, err := io.Copy(out, tarReader); err != nil {
				out.Close()
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", header.Name, err)
			}
		case tar.TypeDir:
			if err := os.MkdirAll(destination, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}
		default:
			return fmt.Errorf("archive %s member %q has unsupported type %d", archivePath, header.Name, header.Typeflag)
		}
	}
}

// ListMembers returns the member names of an archive, in archive
// order, without extracting.
func ListMembers(archivePath string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("initializing xz reader for %s: %w", archivePath, err)
	}
	tarReader := tar.NewReader(xzReader)

	var members []string
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return members, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive %s: %w", archivePath, err)
		}
		members = append(members, header.Name)
	}
}

// VerifySidecar re-hashes the archive and compares it against its
// checksum sidecar ("<archive>.sha256sum" convention). The algorithm
// is inferred from the sidecar extension; anything that is not
// ".sha256sum" is verified as BLAKE3.
func VerifySidecar(archivePath, sidecarPath string) error {
	recorded, _, err := binhash.ReadSidecar(sidecarPath)
	if err != nil {
		return err
	}

	algorithm := binhash.BLAKE3
	if strings.HasSuffix(sidecarPath, ".sha256sum") {
		algorithm = binhash.SHA256
	}
	actual, err := binhash.HashFile(archivePath, algorithm)
	if err != nil {
		return err
	}
	if actual != recorded {
		return fmt.Errorf("archive %s digest mismatch: sidecar records %s, archive hashes to %s",
			archivePath, binhash.FormatDigest(recorded), binhash.FormatDigest(actual))
	}
	return nil
}

// LevelFor picks the effective compression level for a slice's
// target family. Architecture-specific slices carry device code that
// is already compressed, so high xz levels burn CPU for nothing —
// they get level 1. Target-neutral ("generic") slices use the
// configured level.
func LevelFor(targetFamily string, configured int) int {
	if targetFamily != target.GenericFamily {
		return 1
	}
	return configured
}

// dictCapForLevel maps the CLI's 0–9 compression level onto the xz
// dictionary capacity: 1 MiB at level 0 doubling to 64 MiB at level
// 6 and above (matching xz's own preset dictionary sizes closely
// enough for archive work).
func dictCapForLevel(level int) int {
	if level < 0 {
		level = 0
	}
	if level > 6 {
		level = 6
	}
	return 1 << (20 + level)
}

// MissingArtifactFileError reports a manifested file absent from the
// slice directory at archive time. This is always a hard error:
// silently producing a partial archive would break the
// archive–manifest consistency contract downstream packagers rely on.
type MissingArtifactFileError struct {
	SliceDir string
	RelPath  string
}

func (e *MissingArtifactFileError) Error() string {
	return fmt.Sprintf("slice %s: manifested file %s is missing on disk", e.SliceDir, e.RelPath)
}

// Class returns the error taxonomy name printed by the CLI.
func (e *MissingArtifactFileError) Class() string { return "SlicingError" }
