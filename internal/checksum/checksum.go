// Package checksum computes and verifies SHA-256 digests of release
// artifacts. Digests are plain lowercase hex, the format go's own
// checksum tooling and most release pipelines expect.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256File streams a file through SHA-256 and returns the hex digest.
func SHA256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyFile recomputes a file's digest and compares it to expected.
func VerifyFile(path, expected string) error {
	if len(expected) != sha256.Size*2 {
		return fmt.Errorf("invalid checksum: expected %d hex characters, got %d", sha256.Size*2, len(expected))
	}

	actual, err := SHA256File(path)
	if err != nil {
		return fmt.Errorf("failed to compute checksum: %w", err)
	}

	if actual != expected {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expected, actual)
	}
	return nil
}
