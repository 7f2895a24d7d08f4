// Package checksum computes and verifies SHA-256 sidecar files for dump artifacts.
//
// A sidecar is named "<artifact>.sha256" and holds one line in the format of
// the standard checksum tools:
//
//	<lowercase hex digest>  <artifact basename>
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ewiniecke/nb27-backup/internal/models"
)

// SidecarSuffix is appended to an artifact path to name its checksum file.
const SidecarSuffix = ".sha256"

// SidecarPath returns the checksum file path for an artifact.
func SidecarPath(artifactPath string) string {
	return artifactPath + SidecarSuffix
}

// File returns the SHA-256 digest of the file at path as lowercase hex.
func File(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is controlled by caller
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Reader(f)
}

// Reader returns the SHA-256 digest of everything read from r as lowercase hex.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Line formats a sidecar line for the given digest and artifact path.
func Line(digest, artifactPath string) string {
	return fmt.Sprintf("%s  %s\n", digest, filepath.Base(artifactPath))
}

// WriteSidecar hashes the finalized artifact and writes its sidecar next to it.
// The sidecar appears under its final name only once fully written.
func WriteSidecar(artifactPath string) (string, string, error) {
	digest, err := File(artifactPath)
	if err != nil {
		return "", "", err
	}

	sidecar := SidecarPath(artifactPath)
	if err := writeAtomic(sidecar, []byte(Line(digest, artifactPath))); err != nil {
		return "", "", err
	}

	return sidecar, digest, nil
}

// ReadSidecar parses a sidecar file and returns the recorded digest (lowercased)
// and file name.
func ReadSidecar(path string) (string, string, error) {
	f, err := os.Open(path) //nolint:gosec // path is controlled by caller
	if err != nil {
		return "", "", fmt.Errorf("failed to open checksum file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name := ""
		if len(fields) > 1 {
			name = strings.TrimPrefix(fields[1], "*")
		}
		return strings.ToLower(fields[0]), name, nil
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("failed to read checksum file: %w", err)
	}

	return "", "", fmt.Errorf("checksum file %s is empty", path)
}

// Verify recomputes the artifact digest and compares it with the sidecar.
// A mismatch, or a sidecar that cannot be read, wraps models.ErrChecksumMismatch.
func Verify(artifactPath, sidecarPath string) (string, error) {
	expected, _, err := ReadSidecar(sidecarPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrChecksumMismatch, err)
	}

	actual, err := File(artifactPath)
	if err != nil {
		return "", err
	}

	if actual != expected {
		return actual, fmt.Errorf("%w: %s has %s, sidecar records %s",
			models.ErrChecksumMismatch, filepath.Base(artifactPath), actual, expected)
	}

	return actual, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checksum file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checksum file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename checksum file: %w", err)
	}

	success = true
	return nil
}
