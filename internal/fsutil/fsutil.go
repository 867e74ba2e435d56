// Package fsutil writes build outputs and state files so that readers never
// observe a partially written file.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/docrun/internal/checksum"
)

// AtomicWrite replaces path with data: it writes .<basename>.tmp.<pid>.<rand>
// next to the target, fsyncs it, renames it over path and fsyncs the
// directory. Missing parent directories are created with 0700.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath, err := tempPath(path)
	if err != nil {
		return fmt.Errorf("failed to generate temp path: %w", err)
	}

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// OpenFile applies the umask; outputs must end up with perm exactly.
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// AtomicWriteJSON writes v as indented JSON with a trailing newline and 0600
// permissions.
func AtomicWriteJSON(path string, v any) error {
	if v == nil {
		return fmt.Errorf("cannot write nil value")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	data = append(data, '\n')

	return AtomicWrite(path, data, 0600)
}

func tempPath(path string) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	name := fmt.Sprintf(".%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), hex.EncodeToString(suffix))
	return filepath.Join(filepath.Dir(path), name), nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

// ResolveWithin joins a relative path onto root and rejects results that
// leave root, either lexically or through a symlink that already exists.
func ResolveWithin(root, relative string) (string, error) {
	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("absolute paths not allowed: %s", relative)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	target := filepath.Join(rootAbs, relative)
	if !within(rootAbs, target) {
		return "", fmt.Errorf("path escapes %s: %s", root, relative)
	}

	// Check the deepest existing ancestor so a symlinked directory cannot
	// redirect a file that does not exist yet.
	existing := target
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing || !within(rootAbs, parent) {
			return target, nil
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	if !within(rootAbs, resolved) {
		return "", fmt.Errorf("symlink escapes %s: %s", root, relative)
	}
	if existing == target {
		return resolved, nil
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Output describes a file written under an output root.
type Output struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// WriteOutput atomically writes content to relativePath under root with 0644
// permissions, creating directories with 0755, and returns its checksum.
func WriteOutput(root, relativePath string, content []byte) (Output, error) {
	fullPath, err := ResolveWithin(root, relativePath)
	if err != nil {
		return Output{}, fmt.Errorf("invalid output path: %w", err)
	}

	// Rendered documents are published, so their directories are too.
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return Output{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := AtomicWrite(fullPath, content, 0644); err != nil {
		return Output{}, fmt.Errorf("failed to write output %s: %w", relativePath, err)
	}

	return Output{
		Path:   filepath.ToSlash(relativePath),
		SHA256: checksum.SHA256Bytes(content),
		Size:   int64(len(content)),
	}, nil
}

// RemoveOutput deletes relativePath under root. A file that is already gone
// is not an error.
func RemoveOutput(root, relativePath string) error {
	fullPath, err := ResolveWithin(root, filepath.FromSlash(relativePath))
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove output %s: %w", relativePath, err)
	}
	return nil
}
