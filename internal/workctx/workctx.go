// Package workctx manages the process-wide working context snippets run in:
// the current working directory and the module search path used by load().
//
// Both are global state. Callers must serialize Enter/Restore pairs; the
// directive controller holds a process-wide lock for the whole invocation.
package workctx

import (
	"fmt"
	"os"
	"sync"
)

var (
	pathMu     sync.RWMutex
	searchPath []string
)

// SearchPath returns a copy of the current module search path.
func SearchPath() []string {
	pathMu.RLock()
	defer pathMu.RUnlock()
	return append([]string(nil), searchPath...)
}

// SetSearchPath replaces the search path.
func SetSearchPath(dirs []string) {
	pathMu.Lock()
	defer pathMu.Unlock()
	searchPath = append([]string(nil), dirs...)
}

// Context is an established working context. Restore puts back exactly the
// working directory and search path that were active before Enter.
type Context struct {
	Dir   string
	Extra []string

	prevDir  string
	prevPath []string
	restored bool
}

// Enter changes the working directory to dir and appends extra to the search
// path. On error nothing has been changed.
func Enter(dir string, extra ...string) (*Context, error) {
	prevDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to read working directory: %w", err)
	}

	if dir != "" {
		if err := os.Chdir(dir); err != nil {
			return nil, fmt.Errorf("failed to enter directory %s: %w", dir, err)
		}
	}

	pathMu.Lock()
	prevPath := append([]string(nil), searchPath...)
	searchPath = append(searchPath, extra...)
	pathMu.Unlock()

	return &Context{
		Dir:      dir,
		Extra:    extra,
		prevDir:  prevDir,
		prevPath: prevPath,
	}, nil
}

// Restore reinstates the previous working directory and search path. It is
// safe to call more than once; only the first call has an effect.
func (c *Context) Restore() error {
	if c == nil || c.restored {
		return nil
	}
	c.restored = true

	pathMu.Lock()
	searchPath = c.prevPath
	pathMu.Unlock()

	if err := os.Chdir(c.prevDir); err != nil {
		return fmt.Errorf("failed to restore working directory %s: %w", c.prevDir, err)
	}
	return nil
}
