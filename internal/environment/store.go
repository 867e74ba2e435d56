package environment

import (
	"sort"
	"sync"
)

// Store maps document ids to their Environment for one build session.
// It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	envs map[string]*Environment
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{envs: make(map[string]*Environment)}
}

// GetOrCreate returns the environment for docID, registering an empty one if
// none exists. created reports whether a new environment was registered.
func (s *Store) GetOrCreate(docID string) (env *Environment, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env, ok := s.envs[docID]; ok {
		return env, false
	}
	env = newEnvironment(docID)
	s.envs[docID] = env
	return env, true
}

// Lookup returns the environment for docID without creating one.
func (s *Store) Lookup(docID string) (*Environment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envs[docID]
	return env, ok
}

// Purge discards the environment for docID. It reports whether one existed.
func (s *Store) Purge(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.envs[docID]; !ok {
		return false
	}
	delete(s.envs, docID)
	return true
}

// ClearAll discards every environment and returns how many were dropped.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.envs)
	s.envs = make(map[string]*Environment)
	return n
}

// Len returns the number of registered environments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envs)
}

// DocIDs returns the registered document ids, sorted.
func (s *Store) DocIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.envs))
	for id := range s.envs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
