package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/iambrandonn/docrun/internal/checksum"
	"github.com/iambrandonn/docrun/internal/directive"
	"github.com/iambrandonn/docrun/internal/document"
	"github.com/iambrandonn/docrun/internal/eventlog"
	"github.com/iambrandonn/docrun/internal/fsutil"
	"github.com/iambrandonn/docrun/internal/snapshot"
)

type docResult struct {
	doc snapshot.Document

	directives int
	warnings   int
	faults     int

	err error
}

// renderAll renders changes on up to jobs workers. Each document is handled
// by a single worker, so its directives run in document order. Results keep
// the order of changes.
func (b *Builder) renderAll(ctx context.Context, changes []snapshot.Change, jobs int, events *eventlog.EventLog) ([]docResult, error) {
	results := make([]docResult, len(changes))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(jobs, len(changes)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = b.renderDocument(ctx, changes[i], events)
			}
		}()
	}

feed:
	for i := range changes {
		select {
		case work <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Builder) renderDocument(ctx context.Context, change snapshot.Change, events *eventlog.EventLog) docResult {
	res := docResult{doc: change.Doc}
	logger := b.logger.With("doc", change.Doc.ID)
	sourceRoot := b.cfg.SourcePath()
	srcPath := filepath.Join(sourceRoot, filepath.FromSlash(change.Doc.Path))

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return b.fail(events, res, fmt.Errorf("failed to read document: %w", err))
	}
	// The manifest records what was rendered, even if the file changed
	// after the scan.
	res.doc.SHA256 = checksum.SHA256Bytes(data)
	res.doc.Size = int64(len(data))

	logger.Debug("rendering document", "reason", change.Reason)

	parsed := document.Parse(string(data))
	dirs := parsed.Directives()
	results := make([]directive.Result, 0, len(dirs))
	deps := make(map[string]bool)

	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}

		r := b.controller.Run(ctx, directive.Request{
			DocID:      change.Doc.ID,
			DocPath:    srcPath,
			Line:       d.Line,
			Argument:   d.Argument,
			Content:    d.Content,
			RawOptions: d.Options,
		})
		results = append(results, r)
		res.directives++

		evt := eventlog.Event{
			Kind:         eventlog.KindDirective,
			Doc:          change.Doc.ID,
			Line:         d.Line,
			Mode:         string(r.Mode),
			Status:       eventlog.StatusOK,
			Dependencies: r.Dependencies,
		}
		switch {
		case r.Warned():
			res.warnings++
			evt.Status = eventlog.StatusWarning
			evt.Message = r.Err.Msg
		case r.Failed:
			res.faults++
			evt.Status = eventlog.StatusFailed
		}
		b.record(events, evt)

		for _, dep := range r.Dependencies {
			deps[dep] = true
		}
	}

	rendered, err := parsed.Render(results)
	if err != nil {
		return b.fail(events, res, err)
	}

	out, err := fsutil.WriteOutput(b.cfg.OutputPath(), filepath.FromSlash(change.Doc.Path), []byte(rendered))
	if err != nil {
		return b.fail(events, res, err)
	}
	res.doc.Output = &out
	res.doc.Dependencies = dependencies(sourceRoot, deps)

	b.record(events, eventlog.Event{
		Kind:         eventlog.KindDocumentRendered,
		Doc:          change.Doc.ID,
		Reason:       string(change.Reason),
		Dependencies: dependencyPaths(res.doc.Dependencies),
		OutputPath:   out.Path,
		OutputSHA256: out.SHA256,
		OutputSize:   out.Size,
		Counts: map[string]int{
			"directives": res.directives,
			"warnings":   res.warnings,
			"faults":     res.faults,
		},
	})
	logger.Info("document rendered",
		"directives", res.directives,
		"warnings", res.warnings,
		"faults", res.faults)

	return res
}

func (b *Builder) fail(events *eventlog.EventLog, res docResult, err error) docResult {
	res.err = err
	b.logger.Error("document failed", "doc", res.doc.ID, "error", err)
	b.record(events, eventlog.Event{
		Kind:    eventlog.KindDocumentFailed,
		Doc:     res.doc.ID,
		Status:  eventlog.StatusError,
		Message: err.Error(),
	})
	return res
}

// dependencies checksums the included files. A file that cannot be read is
// recorded without a checksum, which never matches, so the document is
// rendered again by every build until the file is readable.
func dependencies(sourceRoot string, set map[string]bool) []snapshot.Dependency {
	if len(set) == 0 {
		return nil
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	deps := make([]snapshot.Dependency, 0, len(paths))
	for _, p := range paths {
		sum, err := checksum.SHA256File(filepath.Join(sourceRoot, filepath.FromSlash(p)))
		if err != nil {
			sum = ""
		}
		deps = append(deps, snapshot.Dependency{Path: p, SHA256: sum})
	}
	return deps
}

func dependencyPaths(deps []snapshot.Dependency) []string {
	if len(deps) == 0 {
		return nil
	}
	paths := make([]string, len(deps))
	for i, d := range deps {
		paths[i] = d.Path
	}
	return paths
}
