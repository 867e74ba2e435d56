// Package lifecycle destroys document environments when the build host says
// they are stale. It is the only place environments are discarded.
package lifecycle

import (
	"io"
	"log/slog"
	"time"

	"github.com/iambrandonn/docrun/internal/environment"
)

// Reasons reported with a purge.
const (
	ReasonChanged    = "changed"
	ReasonRemoved    = "removed"
	ReasonDependency = "dependency changed"
)

// Manager connects host signals to an environment Store.
type Manager struct {
	store  *environment.Store
	logger *slog.Logger

	// OnPurge, when set, is called after an environment was discarded.
	OnPurge func(docID, reason string)
}

// NewManager creates a Manager for store.
func NewManager(store *environment.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{store: store, logger: logger}
}

// OnDocumentPurged discards the environment of docID. It reports whether one
// existed; purging an unknown document is a no-op.
func (m *Manager) OnDocumentPurged(docID, reason string) bool {
	env, ok := m.store.Lookup(docID)
	if !ok || !m.store.Purge(docID) {
		m.logger.Debug("no environment to purge", "doc", docID, "reason", reason)
		return false
	}
	m.logger.Info("environment purged",
		"doc", docID,
		"reason", reason,
		"bindings", env.Len(),
		"runs", env.Runs(),
		"age", time.Since(env.CreatedAt()).Round(time.Millisecond))
	if m.OnPurge != nil {
		m.OnPurge(docID, reason)
	}
	return true
}

// OnBuildReset discards every environment and returns how many were dropped.
func (m *Manager) OnBuildReset() int {
	docs := m.store.DocIDs()
	n := m.store.ClearAll()
	m.logger.Info("all environments cleared", "count", n, "docs", docs)
	return n
}
