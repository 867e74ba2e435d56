package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_CreatesAllDirectories(t *testing.T) {
	stateRoot := filepath.Join(t.TempDir(), ".docrun")

	require.NoError(t, Initialize(stateRoot))

	for _, dir := range []string{".", "events", "snapshots"} {
		path := filepath.Join(stateRoot, dir)
		info, err := os.Stat(path)
		require.NoError(t, err, "Directory %s should exist", dir)
		assert.True(t, info.IsDir(), "%s should be a directory", dir)
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm(),
			"Directory %s should have 0700 permissions", dir)
	}
}

func TestInitialize_IdempotentCalls(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, Initialize(tmpDir))
	assert.NoError(t, Initialize(tmpDir), "Second initialize should be idempotent")
}

func TestIsInitialized(t *testing.T) {
	tmpDir := t.TempDir()

	initialized, err := IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.False(t, initialized)

	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "events"), 0700))
	initialized, err = IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.False(t, initialized, "Should not be considered initialized if missing directories")

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "snapshots"), nil, 0600))
	initialized, err = IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.False(t, initialized, "A file in place of a directory does not count")

	require.NoError(t, os.Remove(filepath.Join(tmpDir, "snapshots")))
	require.NoError(t, Initialize(tmpDir))
	initialized, err = IsInitialized(tmpDir)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestPaths(t *testing.T) {
	root := "/proj/.docrun"

	assert.Equal(t, "/proj/.docrun/manifest.json", ManifestPath(root))
	assert.Equal(t, "/proj/.docrun/snapshots/snap-0123456789ab.manifest.json", SnapshotPath(root, "snap-0123456789ab"))
	assert.Equal(t, "/proj/.docrun/events", EventsDir(root))
	assert.Equal(t, "/proj/.docrun/events/build-1.ndjson", EventsPath(root, "build-1"))
}
