package evaluator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"

	"github.com/iambrandonn/docrun/internal/segment"
	"github.com/iambrandonn/docrun/internal/workctx"
)

// Builtins returns the names predeclared for every snippet.
func Builtins() starlark.StringDict {
	return starlark.StringDict{
		"json":      starlarkjson.Module,
		"math":      starlarkmath.Module,
		"time":      starlarktime.Module,
		"read_file": starlark.NewBuiltin("read_file", readFile),
	}
}

// readFile reads a file relative to the current working directory, which is
// the directory of the document being built.
func readFile(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return starlark.String(data), nil
}

// loader resolves load() statements against the working directory and the
// workctx search path. Modules are executed once per run.
type loader struct {
	eval  *Starlark
	doc   string
	cache map[string]*loadEntry

	// seeds answers load(seedModule) for the current run.
	seeds starlark.StringDict
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

func newLoader(eval *Starlark, doc string) *loader {
	return &loader{eval: eval, doc: doc, cache: make(map[string]*loadEntry)}
}

func (l *loader) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	if module == seedModule && l.seeds != nil {
		return l.seeds, nil
	}

	path, err := findModule(module)
	if err != nil {
		return nil, err
	}

	entry, ok := l.cache[path]
	if ok && entry == nil {
		return nil, fmt.Errorf("cycle in load graph involving %s", module)
	}
	if ok {
		return entry.globals, entry.err
	}

	l.cache[path] = nil
	l.eval.logger.Debug("loading module", "doc", l.doc, "module", module, "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		l.cache[path] = &loadEntry{err: err}
		return nil, err
	}

	child := &starlark.Thread{
		Name:  "load " + module,
		Print: thread.Print,
		Load:  l.load,
	}
	globals, err := starlark.ExecFileOptions(segment.FileOptions, child, path, data, l.eval.predeclared)
	l.cache[path] = &loadEntry{globals: globals, err: err}
	return globals, err
}

var errModuleNotFound = errors.New("module not found")

// findModule locates module in the working directory, then in each search
// path entry in order.
func findModule(module string) (string, error) {
	if filepath.IsAbs(module) {
		if _, err := os.Stat(module); err != nil {
			return "", fmt.Errorf("%w: %s", errModuleNotFound, module)
		}
		return module, nil
	}

	candidates := append([]string{"."}, workctx.SearchPath()...)
	for _, dir := range candidates {
		path := filepath.Join(dir, module)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(path)
			if err != nil {
				return "", err
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %d directories)", errModuleNotFound, module, len(candidates))
}
