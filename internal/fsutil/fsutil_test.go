package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/docrun/internal/checksum"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		data     []byte
		perm     os.FileMode
		existing bool
	}{
		{"new file", filepath.Join(tmpDir, "new.txt"), []byte("hello world"), 0600, false},
		{"overwrite", filepath.Join(tmpDir, "existing.txt"), []byte("updated"), 0600, true},
		{"empty file", filepath.Join(tmpDir, "empty.txt"), []byte{}, 0600, false},
		{"nested directory", filepath.Join(tmpDir, "nested", "deep", "file.md"), []byte("# doc\n"), 0644, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.existing {
				require.NoError(t, os.WriteFile(tt.path, []byte("original"), 0600))
			}

			require.NoError(t, AtomicWrite(tt.path, tt.data, tt.perm))

			content, err := os.ReadFile(tt.path)
			require.NoError(t, err)
			assert.Equal(t, string(tt.data), string(content))

			info, err := os.Stat(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.perm, info.Mode().Perm())
		})
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	require.NoError(t, AtomicWriteJSON(path, map[string]int{"documents": 2}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"documents\": 2\n}\n", string(content))

	assert.Error(t, AtomicWriteJSON(filepath.Join(t.TempDir(), "nil.json"), nil))
}

func TestAtomicWriteNoTempFilesLeft(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "out.md")

	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWrite(target, []byte("content"), 0644))
	}

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.md", entries[0].Name())
}

func TestAtomicWriteConcurrency(t *testing.T) {
	target := filepath.Join(t.TempDir(), "concurrent.md")

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			done <- AtomicWrite(target, []byte("concurrent write"), 0644)
		}()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-done)
	}

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "concurrent write", string(content))
}

func TestResolveWithin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "guide"), 0700))

	tests := []struct {
		name     string
		relative string
		wantErr  bool
	}{
		{"file in root", "index.md", false},
		{"nested file", "guide/intro.md", false},
		{"not yet existing", "new/page.md", false},
		{"dot", ".", false},
		{"traversal", "../escape.md", true},
		{"deep traversal", "guide/../../../etc/passwd", true},
		{"absolute", "/etc/passwd", true},
		{"dotdot prefix is a name", "..notes.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.relative)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			rootAbs, err := filepath.EvalSymlinks(root)
			require.NoError(t, err)
			assert.True(t, within(rootAbs, got), "%s not within %s", got, rootAbs)
		})
	}
}

func TestResolveWithin_SymlinkEscape(t *testing.T) {
	tmpDir := t.TempDir()
	root := filepath.Join(tmpDir, "out")
	outside := filepath.Join(tmpDir, "outside")
	require.NoError(t, os.MkdirAll(root, 0700))
	require.NoError(t, os.MkdirAll(outside, 0700))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ResolveWithin(root, "link/page.md")
	assert.Error(t, err)

	_, err = ResolveWithin(root, "link")
	assert.Error(t, err)
}

func TestWriteOutput(t *testing.T) {
	root := t.TempDir()
	content := []byte("# Intro\n")

	out, err := WriteOutput(root, filepath.Join("guide", "intro.md"), content)
	require.NoError(t, err)

	assert.Equal(t, "guide/intro.md", out.Path)
	assert.Equal(t, int64(len(content)), out.Size)
	assert.Equal(t, checksum.SHA256Bytes(content), out.SHA256)

	sum, err := checksum.SHA256File(filepath.Join(root, "guide", "intro.md"))
	require.NoError(t, err)
	assert.Equal(t, out.SHA256, sum)

	_, err = WriteOutput(root, "../escape.md", content)
	assert.Error(t, err)
}

func TestWriteOutput_DirectoryPermissions(t *testing.T) {
	root := t.TempDir()

	_, err := WriteOutput(root, "guide/deep/page.md", []byte("x"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "guide", "deep"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestRemoveOutput(t *testing.T) {
	root := t.TempDir()

	_, err := WriteOutput(root, "guide/intro.md", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, RemoveOutput(root, "guide/intro.md"))
	_, err = os.Stat(filepath.Join(root, "guide", "intro.md"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, RemoveOutput(root, "guide/intro.md"), "removing twice is fine")
	assert.Error(t, RemoveOutput(root, "../outside.md"))
}
