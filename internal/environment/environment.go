// Package environment holds the per-document symbol tables snippets execute
// against, and the registry that owns them.
package environment

import (
	"sort"
	"time"
)

// Environment is the mutable symbol table of one document.
//
// An Environment is not safe for concurrent use. Invocations for one document
// run strictly in build order, so callers never share it between goroutines.
type Environment struct {
	docID     string
	createdAt time.Time
	bindings  map[string]any
	runs      int
	state     any
}

func newEnvironment(docID string) *Environment {
	return &Environment{
		docID:     docID,
		createdAt: time.Now().UTC(),
		bindings:  make(map[string]any),
	}
}

// DocID returns the document the environment belongs to.
func (e *Environment) DocID() string { return e.docID }

// CreatedAt returns when the environment was registered.
func (e *Environment) CreatedAt() time.Time { return e.createdAt }

// Get looks up a binding.
func (e *Environment) Get(name string) (any, bool) {
	v, ok := e.bindings[name]
	return v, ok
}

// Set binds name to value.
func (e *Environment) Set(name string, value any) {
	e.bindings[name] = value
}

// Delete removes a binding.
func (e *Environment) Delete(name string) {
	delete(e.bindings, name)
}

// Len returns the number of bindings.
func (e *Environment) Len() int { return len(e.bindings) }

// Names returns the bound names in sorted order.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.bindings))
	for name := range e.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Range calls fn for every binding until fn returns false.
func (e *Environment) Range(fn func(name string, value any) bool) {
	for name, value := range e.bindings {
		if !fn(name, value) {
			return
		}
	}
}

// MarkRun records that a statement or block was executed against e.
func (e *Environment) MarkRun() { e.runs++ }

// Runs returns how many executions have used e.
func (e *Environment) Runs() int { return e.runs }

// State returns the value an evaluator attached with SetState, or nil.
func (e *Environment) State() any { return e.state }

// SetState attaches evaluator-private data to e. It is dropped together with
// the environment when the document is purged.
func (e *Environment) SetState(v any) { e.state = v }
