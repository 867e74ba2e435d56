// Package workspace lays out the docrun state directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the manifest of the most recent build, relative to the
// state directory.
const ManifestFile = "manifest.json"

// GetRequiredDirectories returns the directories that must exist under a
// state directory.
func GetRequiredDirectories() []string {
	return []string{
		"events",    // events/<build_id>.ndjson
		"snapshots", // snapshots/snap-XXXX.manifest.json
	}
}

// Initialize creates all required state directories with 0700 permissions.
// It is idempotent.
func Initialize(stateRoot string) error {
	for _, dir := range append([]string{"."}, GetRequiredDirectories()...) {
		path := filepath.Join(stateRoot, dir)
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// IsInitialized checks if a state directory has all required directories
func IsInitialized(stateRoot string) (bool, error) {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(stateRoot, dir)

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", path, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// ManifestPath returns the path of the latest build manifest.
func ManifestPath(stateRoot string) string {
	return filepath.Join(stateRoot, ManifestFile)
}

// SnapshotPath returns where the manifest with the given id is archived.
func SnapshotPath(stateRoot, snapshotID string) string {
	return filepath.Join(stateRoot, "snapshots", snapshotID+".manifest.json")
}

// EventsDir returns the directory holding build event logs.
func EventsDir(stateRoot string) string {
	return filepath.Join(stateRoot, "events")
}

// EventsPath returns the event log of one build.
func EventsPath(stateRoot, buildID string) string {
	return filepath.Join(EventsDir(stateRoot), buildID+".ndjson")
}
