package lifecycle

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/docrun/internal/environment"
)

func TestOnDocumentPurged(t *testing.T) {
	store := environment.NewStore()
	env, _ := store.GetOrCreate("D")
	env.Set("x", 1)
	store.GetOrCreate("D2")

	var purged []string
	m := NewManager(store, nil)
	m.OnPurge = func(docID, reason string) { purged = append(purged, docID+":"+reason) }

	require.True(t, m.OnDocumentPurged("D", ReasonChanged))
	assert.False(t, m.OnDocumentPurged("D", ReasonChanged), "second purge is a no-op")
	assert.False(t, m.OnDocumentPurged("unknown", ReasonRemoved))

	assert.Equal(t, []string{"D:changed"}, purged)
	assert.Equal(t, []string{"D2"}, store.DocIDs())

	fresh, created := store.GetOrCreate("D")
	assert.True(t, created)
	_, ok := fresh.Get("x")
	assert.False(t, ok)
}

func TestOnBuildReset(t *testing.T) {
	store := environment.NewStore()
	store.GetOrCreate("a")
	store.GetOrCreate("b")

	m := NewManager(store, nil)
	assert.Equal(t, 2, m.OnBuildReset())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, m.OnBuildReset())
}

func TestManager_LogsEnvironmentUsage(t *testing.T) {
	store := environment.NewStore()
	env, _ := store.GetOrCreate("guide")
	env.Set("x", 1)
	env.MarkRun()
	env.MarkRun()
	store.GetOrCreate("index")

	var logs bytes.Buffer
	m := NewManager(store, slog.New(slog.NewTextHandler(&logs, nil)))

	require.True(t, m.OnDocumentPurged("guide", ReasonDependency))
	assert.Contains(t, logs.String(), `msg="environment purged" doc=guide reason="dependency changed" bindings=1 runs=2`)

	logs.Reset()
	assert.Equal(t, 1, m.OnBuildReset())
	assert.Contains(t, logs.String(), "count=1 docs=[index]")
}
