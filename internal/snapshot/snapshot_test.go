package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScan(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	docs, err := Scan(root, ScanOptions{
		Extensions: []string{".md"},
		Exclude:    []string{filepath.Join(root, "_build")},
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	wantIDs := []string{"guide/intro", "guide/setup", "index"}
	if len(docs) != len(wantIDs) {
		t.Fatalf("Scan() returned %d documents, want %d: %+v", len(docs), len(wantIDs), docs)
	}
	for i, want := range wantIDs {
		if docs[i].ID != want {
			t.Errorf("docs[%d].ID = %s, want %s", i, docs[i].ID, want)
		}
	}

	intro := docs[0]
	if intro.Path != "guide/intro.md" {
		t.Errorf("Path = %s, want guide/intro.md", intro.Path)
	}
	if intro.SHA256 == "" {
		t.Error("document SHA256 is empty")
	}
	if intro.Size == 0 {
		t.Error("document size is 0")
	}
	if intro.Mtime.IsZero() {
		t.Error("document mtime is zero")
	}
}

func TestScanExtensionCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.MD", "# hi\n")

	docs, err := Scan(root, ScanOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "README" {
		t.Errorf("Scan() = %+v, want one document README", docs)
	}
}

func TestScanDuplicateID(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.md", "a")
	writeFile(t, root, "page.markdown", "b")

	_, err := Scan(root, ScanOptions{Extensions: []string{".md", ".markdown"}})
	if err == nil {
		t.Fatal("Scan() succeeded with two documents sharing an id")
	}
}

func TestNewManifest(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	docs, err := Scan(root, ScanOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	m1, err := NewManifest("build-1", root, docs)
	if err != nil {
		t.Fatalf("NewManifest() error = %v", err)
	}

	// "snap-" (5 chars) + 12 hex chars
	if len(m1.SnapshotID) != 17 || m1.SnapshotID[:5] != "snap-" {
		t.Errorf("SnapshotID = %s, want snap- followed by 12 hex chars", m1.SnapshotID)
	}
	if !m1.CreatedAt.After(time.Now().Add(-1 * time.Minute)) {
		t.Error("CreatedAt is not recent")
	}

	m2, err := NewManifest("build-2", root, docs)
	if err != nil {
		t.Fatalf("NewManifest() error = %v", err)
	}
	if m1.SnapshotID != m2.SnapshotID {
		t.Error("SnapshotID depends on more than the document list")
	}

	writeFile(t, root, "index.md", "# Changed\n")
	docs, err = Scan(root, ScanOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	m3, err := NewManifest("build-3", root, docs)
	if err != nil {
		t.Fatalf("NewManifest() error = %v", err)
	}
	if m3.SnapshotID == m1.SnapshotID {
		t.Error("SnapshotID unchanged after document modification")
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	docs, err := Scan(root, ScanOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	docs[0].Dependencies = []Dependency{{Path: "snippets/a.star", SHA256: "sha256:00"}}

	original, err := NewManifest("build-1", root, docs)
	if err != nil {
		t.Fatalf("NewManifest() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshots", original.SnapshotID+".manifest.json")
	if err := SaveSnapshot(original, path); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if loaded.SnapshotID != original.SnapshotID {
		t.Errorf("SnapshotID mismatch: %s != %s", loaded.SnapshotID, original.SnapshotID)
	}
	if len(loaded.Documents) != len(original.Documents) {
		t.Errorf("document count mismatch: %d != %d", len(loaded.Documents), len(original.Documents))
	}
	if got := loaded.Documents[0].Dependencies; len(got) != 1 || got[0].Path != "snippets/a.star" {
		t.Errorf("dependencies not preserved: %+v", got)
	}
}

func TestLoadIfExists(t *testing.T) {
	m, err := LoadIfExists(filepath.Join(t.TempDir(), "manifest.json"))
	if err != nil {
		t.Fatalf("LoadIfExists() error = %v", err)
	}
	if m != nil {
		t.Errorf("LoadIfExists() = %+v, want nil", m)
	}

	bad := filepath.Join(t.TempDir(), "manifest.json")
	writeFile(t, filepath.Dir(bad), "manifest.json", "{not json")
	if _, err := LoadIfExists(bad); err == nil {
		t.Error("LoadIfExists() accepted a damaged manifest")
	}
}

func TestEmptySourceTree(t *testing.T) {
	docs, err := Scan(t.TempDir(), ScanOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected 0 documents, got %d", len(docs))
	}

	m, err := NewManifest("b", "docs", docs)
	if err != nil {
		t.Fatalf("NewManifest() error = %v", err)
	}
	if m.SnapshotID == "" {
		t.Error("SnapshotID should not be empty for an empty tree")
	}
}

func createTestTree(t *testing.T, root string) {
	t.Helper()

	files := map[string]string{
		"index.md":       "# Index\n",
		"guide/intro.md": "# Intro\n\n```{run}\nx = 1\n```\n",
		"guide/setup.md": "# Setup\n",

		// Not documents
		"snippets/a.star":      "x = 1\n",
		"_build/index.md":      "# rendered\n",
		".git/config":          "[core]\n",
		".hidden.md":           "hidden file",
		"guide/.drafts/wip.md": "draft",
	}

	for path, content := range files {
		writeFile(t, root, path, content)
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	fullPath := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", rel, err)
	}
}
