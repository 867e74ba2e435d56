// Package checksum computes the "sha256:<hex>" digests recorded in build
// manifests.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Prefix marks the digest algorithm.
const Prefix = "sha256:"

// SHA256Bytes returns the digest of data.
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:])
}

// SHA256File streams path through the hash and returns its digest.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Short returns the first n hex characters of a digest.
func Short(sum string, n int) string {
	hexPart := strings.TrimPrefix(sum, Prefix)
	if n > len(hexPart) {
		n = len(hexPart)
	}
	return hexPart[:n]
}

// Matches reports whether the file at path still has digest sum. A missing
// file does not match.
func Matches(path, sum string) (bool, error) {
	if !strings.HasPrefix(sum, Prefix) || len(sum) != len(Prefix)+64 {
		return false, fmt.Errorf("invalid checksum format %q", sum)
	}

	actual, err := SHA256File(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return actual == sum, nil
}
