// Package buildstate persists the progress of the current or last build so
// that a later build can tell the previous one was interrupted.
package buildstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/iambrandonn/docrun/internal/fsutil"
)

// Status represents the overall state of a build
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Stage represents the current build stage
type Stage string

const (
	StageScan     Stage = "scan"
	StagePurge    Stage = "purge"
	StageRender   Stage = "render"
	StageManifest Stage = "manifest"
	StageComplete Stage = "complete"
)

// BuildState is the persisted state of one build.
type BuildState struct {
	BuildID      string     `json:"build_id"`
	Status       Status     `json:"status"`
	CurrentStage Stage      `json:"current_stage"`
	Fresh        bool       `json:"fresh,omitempty"`
	SnapshotID   string     `json:"snapshot_id,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// Documents counts documents by outcome: rendered, unchanged, removed,
	// failed.
	Documents map[string]int `json:"documents,omitempty"`
	// LastDocument is the most recent document whose rendering finished.
	LastDocument string `json:"last_document,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewBuildState creates the state of a build that has just started.
func NewBuildState(buildID string, fresh bool) *BuildState {
	return &BuildState{
		BuildID:      buildID,
		Status:       StatusRunning,
		CurrentStage: StageScan,
		Fresh:        fresh,
		StartedAt:    time.Now().UTC(),
		Documents:    make(map[string]int),
	}
}

// Save writes build state to disk atomically
func Save(state *BuildState, path string) error {
	return fsutil.AtomicWriteJSON(path, state)
}

// Load reads build state from disk
func Load(path string) (*BuildState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build state: %w", err)
	}

	var state BuildState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal build state: %w", err)
	}

	if state.Documents == nil {
		state.Documents = make(map[string]int)
	}
	return &state, nil
}

// LoadIfExists is Load, except that a missing file yields nil.
func LoadIfExists(path string) (*BuildState, error) {
	state, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return state, err
}

// Path returns the standard path for build state
func Path(stateRoot string) string {
	return filepath.Join(stateRoot, "build.json")
}

// Interrupted reports whether the build stopped without recording an outcome.
func (s *BuildState) Interrupted() bool {
	return s != nil && s.Status == StatusRunning
}

// SetStage updates the current build stage
func (s *BuildState) SetStage(stage Stage) {
	s.CurrentStage = stage
}

// RecordDocument counts a finished document under outcome.
func (s *BuildState) RecordDocument(docID, outcome string) {
	if s.Documents == nil {
		s.Documents = make(map[string]int)
	}
	s.Documents[outcome]++
	s.LastDocument = docID
}

// MarkCompleted marks the build as completed
func (s *BuildState) MarkCompleted(snapshotID string) {
	s.Status = StatusCompleted
	s.CurrentStage = StageComplete
	s.SnapshotID = snapshotID
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// MarkFailed marks the build as failed
func (s *BuildState) MarkFailed(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// MarkAborted marks the build as aborted
func (s *BuildState) MarkAborted() {
	s.Status = StatusAborted
	now := time.Now().UTC()
	s.CompletedAt = &now
}
