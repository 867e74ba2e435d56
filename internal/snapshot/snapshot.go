// Package snapshot records which documents a build rendered and what they
// depended on, and works out which of them the next build must redo.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iambrandonn/docrun/internal/checksum"
	"github.com/iambrandonn/docrun/internal/fsutil"
)

// Dependency is a file a document's directives included.
type Dependency struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Document is one source document.
type Document struct {
	// ID is the slash-separated path relative to the source root, without
	// extension. Environments are keyed by it.
	ID     string    `json:"id"`
	Path   string    `json:"path"`
	SHA256 string    `json:"sha256"`
	Size   int64     `json:"size"`
	Mtime  time.Time `json:"mtime"`

	Dependencies []Dependency   `json:"dependencies,omitempty"`
	Output       *fsutil.Output `json:"output,omitempty"`
}

// Manifest represents the state of the source tree after a build
type Manifest struct {
	SnapshotID string     `json:"snapshot_id"`
	BuildID    string     `json:"build_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SourceRoot string     `json:"source_root"`
	Documents  []Document `json:"documents"`
}

// ScanOptions selects documents under a source root.
type ScanOptions struct {
	Extensions []string
	// Exclude lists directories never descended into, such as the output
	// and state directories when they live under the source root.
	Exclude []string
}

// Scan walks sourceRoot and returns its documents sorted by path. Hidden
// files and directories are skipped.
func Scan(sourceRoot string, opts ScanOptions) ([]Document, error) {
	rootAbs, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve excluded directory: %w", err)
		}
		excluded[abs] = true
	}

	var docs []Document
	byID := make(map[string]string)

	err = filepath.WalkDir(rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if p != rootAbs && (strings.HasPrefix(name, ".") || excluded[p]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !hasExtension(name, opts.Extensions) {
			return nil
		}

		rel, err := filepath.Rel(rootAbs, p)
		if err != nil {
			return fmt.Errorf("failed to compute relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)
		id := strings.TrimSuffix(rel, path.Ext(rel))
		if other, dup := byID[id]; dup {
			return fmt.Errorf("documents %s and %s share the id %q", other, rel, id)
		}
		byID[id] = rel

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", rel, err)
		}
		hash, err := checksum.SHA256File(p)
		if err != nil {
			return fmt.Errorf("failed to compute checksum for %s: %w", rel, err)
		}

		docs = append(docs, Document{
			ID:     id,
			Path:   rel,
			SHA256: hash,
			Size:   info.Size(),
			Mtime:  info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source directory %s: %w", sourceRoot, err)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})
	return docs, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := filepath.Ext(name)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// NewManifest builds a manifest for docs and computes its id.
func NewManifest(buildID, sourceRoot string, docs []Document) (*Manifest, error) {
	m := &Manifest{
		BuildID:    buildID,
		CreatedAt:  time.Now().UTC(),
		SourceRoot: sourceRoot,
		Documents:  docs,
	}
	id, err := computeSnapshotID(m)
	if err != nil {
		return nil, fmt.Errorf("failed to compute snapshot ID: %w", err)
	}
	m.SnapshotID = id
	return m, nil
}

// computeSnapshotID hashes the document list.
// Format: "snap-" + first 12 hex chars of SHA256(json(documents))
func computeSnapshotID(m *Manifest) (string, error) {
	data, err := json.Marshal(m.Documents)
	if err != nil {
		return "", fmt.Errorf("failed to marshal documents: %w", err)
	}
	return "snap-" + checksum.Short(checksum.SHA256Bytes(data), 12), nil
}

// Lookup returns the document with the given id.
func (m *Manifest) Lookup(id string) (Document, bool) {
	if m == nil {
		return Document{}, false
	}
	for _, doc := range m.Documents {
		if doc.ID == id {
			return doc, true
		}
	}
	return Document{}, false
}

// SaveSnapshot writes a manifest to disk atomically
func SaveSnapshot(manifest *Manifest, path string) error {
	return fsutil.AtomicWriteJSON(path, manifest)
}

// LoadSnapshot reads a manifest from disk
func LoadSnapshot(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &manifest, nil
}

// LoadIfExists is LoadSnapshot, except that a missing file yields nil.
func LoadIfExists(path string) (*Manifest, error) {
	m, err := LoadSnapshot(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return m, err
}
