// Package build renders a source tree: it finds the documents whose previous
// rendering is stale, purges their environments, runs their directives and
// writes the results, recording every outcome in the build's event log.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/docrun/internal/buildstate"
	"github.com/iambrandonn/docrun/internal/config"
	"github.com/iambrandonn/docrun/internal/directive"
	"github.com/iambrandonn/docrun/internal/eventlog"
	"github.com/iambrandonn/docrun/internal/fsutil"
	"github.com/iambrandonn/docrun/internal/lifecycle"
	"github.com/iambrandonn/docrun/internal/snapshot"
	"github.com/iambrandonn/docrun/internal/workspace"
)

// Document outcomes counted in a Summary and the build state.
const (
	OutcomeRendered  = "rendered"
	OutcomeUnchanged = "unchanged"
	OutcomeRemoved   = "removed"
	OutcomeFailed    = "failed"
)

// ErrDocumentsFailed is returned when at least one document could not be
// rendered. The other documents are still written.
var ErrDocumentsFailed = errors.New("documents failed to render")

// Options control one build.
type Options struct {
	// Fresh discards every environment and renders all documents.
	Fresh bool
	// Jobs is the number of documents rendered concurrently; values below 1
	// use the configured default.
	Jobs int
}

// Summary reports what a build did.
type Summary struct {
	BuildID    string
	SnapshotID string
	EventsPath string

	Rendered  []string
	Unchanged int
	Removed   []string
	Failed    []string
	Purged    int

	Directives int
	// Warnings counts directives replaced by a diagnostic.
	Warnings int
	// Faults counts directives whose snippet failed at runtime.
	Faults int

	Duration time.Duration

	// Reports describes every document this build tried to render, in
	// source order.
	Reports []Report

	// failedSums maps failed documents to the checksum they were rendered
	// from.
	failedSums map[string]string
}

// Report is the outcome of rendering one document.
type Report struct {
	Doc        string
	Reason     snapshot.Reason
	Directives int
	Warnings   int
	Faults     int
	Size       int64
	Err        error
}

// Builder renders the documents of one configured project.
type Builder struct {
	cfg        *config.Config
	controller *directive.Controller
	lifecycle  *lifecycle.Manager
	logger     *slog.Logger

	now func() time.Time
}

// ControllerConfig derives the directive defaults from a project config.
func ControllerConfig(cfg *config.Config) directive.Config {
	return directive.Config{
		SourceRoot:           cfg.SourcePath(),
		DefaultEncoding:      cfg.Directives.SourceEncoding,
		DefaultFormatting:    directive.Formatting(cfg.Directives.DefaultFormatting),
		DefaultTabWidth:      cfg.Directives.TabWidth,
		FileInsertionEnabled: cfg.Directives.FileInsertionEnabled,
		SearchPath:           cfg.SearchPath,
	}
}

// New creates a Builder. controller and manager must share one environment
// store.
func New(cfg *config.Config, controller *directive.Controller, manager *lifecycle.Manager, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		cfg:        cfg,
		controller: controller,
		lifecycle:  manager,
		logger:     logger,
		now:        time.Now,
	}
}

// NewBuildID returns "build-<utc timestamp>-<8 hex chars>". IDs sort by
// start time.
func NewBuildID(now time.Time) string {
	return fmt.Sprintf("build-%s-%s", now.UTC().Format("20060102T150405Z"), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Plan is the work a build would do.
type Plan struct {
	Previous *snapshot.Manifest
	Diff     snapshot.Diff
}

// Empty reports whether nothing needs rendering or removing.
func (p *Plan) Empty() bool {
	return len(p.Diff.Render) == 0 && len(p.Diff.Removed) == 0
}

// Plan scans the source tree and compares it with the last manifest. With
// fresh set, every document is rendered and an unreadable manifest is
// ignored.
func (b *Builder) Plan(fresh bool) (*Plan, error) {
	prev, err := snapshot.LoadIfExists(workspace.ManifestPath(b.cfg.StatePath()))
	if err != nil {
		if !fresh {
			return nil, fmt.Errorf("failed to load previous manifest: %w", err)
		}
		b.logger.Warn("ignoring unreadable manifest", "error", err)
		prev = nil
	}

	docs, err := snapshot.Scan(b.cfg.SourcePath(), snapshot.ScanOptions{
		Extensions: b.cfg.Extensions,
		Exclude:    []string{b.cfg.OutputPath(), b.cfg.StatePath()},
	})
	if err != nil {
		return nil, err
	}

	diff, err := snapshot.Compare(prev, docs, b.cfg.SourcePath(), b.cfg.OutputPath())
	if err != nil {
		if !fresh {
			return nil, fmt.Errorf("failed to compare with previous manifest: %w", err)
		}
		b.logger.Warn("ignoring damaged manifest", "error", err)
		prev = nil
		if diff, err = snapshot.Compare(nil, docs, b.cfg.SourcePath(), b.cfg.OutputPath()); err != nil {
			return nil, fmt.Errorf("failed to plan build: %w", err)
		}
	}

	if fresh {
		render := make([]snapshot.Change, 0, len(docs))
		for _, doc := range docs {
			render = append(render, snapshot.Change{Doc: doc, Reason: snapshot.ReasonFresh})
		}
		diff.Render = render
		diff.Unchanged = nil
	}

	return &Plan{Previous: prev, Diff: diff}, nil
}

// Build renders every stale document. A document that fails to render is
// left out of the manifest so the next build retries it; Build then returns
// ErrDocumentsFailed along with the summary.
func (b *Builder) Build(ctx context.Context, opts Options) (*Summary, error) {
	start := b.now()
	buildID := NewBuildID(start)
	stateRoot := b.cfg.StatePath()
	logger := b.logger.With("build", buildID)

	if err := workspace.Initialize(stateRoot); err != nil {
		return nil, fmt.Errorf("failed to initialize state directory: %w", err)
	}

	statePath := buildstate.Path(stateRoot)
	previous, err := buildstate.LoadIfExists(statePath)
	if err != nil {
		logger.Warn("ignoring unreadable build state", "error", err)
	} else if previous.Interrupted() {
		logger.Warn("previous build did not finish", "previous", previous.BuildID, "stage", previous.CurrentStage)
	}

	state := buildstate.NewBuildState(buildID, opts.Fresh)
	if err := buildstate.Save(state, statePath); err != nil {
		return nil, fmt.Errorf("failed to save build state: %w", err)
	}

	eventsPath := workspace.EventsPath(stateRoot, buildID)
	events, err := eventlog.NewEventLog(eventsPath, buildID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer events.Close()

	summary := &Summary{BuildID: buildID, EventsPath: eventsPath}
	logger.Info("build started", "fresh", opts.Fresh)
	b.record(events, eventlog.Event{Kind: eventlog.KindBuildStarted})

	manifest, err := b.run(ctx, opts, state, events, summary)
	summary.Duration = b.now().Sub(start)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state.MarkAborted()
	case err != nil:
		state.MarkFailed(err)
	default:
		state.MarkCompleted(manifest.SnapshotID)
		summary.SnapshotID = manifest.SnapshotID
	}
	if serr := buildstate.Save(state, statePath); serr != nil {
		logger.Error("failed to save build state", "error", serr)
	}

	finished := eventlog.Event{
		Kind:   eventlog.KindBuildFinished,
		Status: string(state.Status),
		Counts: map[string]int{
			OutcomeRendered:  len(summary.Rendered),
			OutcomeUnchanged: summary.Unchanged,
			OutcomeRemoved:   len(summary.Removed),
			OutcomeFailed:    len(summary.Failed),
			"directives":     summary.Directives,
			"warnings":       summary.Warnings,
			"faults":         summary.Faults,
		},
	}
	if err != nil {
		finished.Message = err.Error()
	}
	b.record(events, finished)

	logger.Info("build finished",
		"status", state.Status,
		"rendered", len(summary.Rendered),
		"unchanged", summary.Unchanged,
		"removed", len(summary.Removed),
		"failed", len(summary.Failed),
		"duration", summary.Duration)

	return summary, err
}

func (b *Builder) run(ctx context.Context, opts Options, state *buildstate.BuildState, events *eventlog.EventLog, summary *Summary) (*snapshot.Manifest, error) {
	if opts.Fresh {
		n := b.lifecycle.OnBuildReset()
		b.record(events, eventlog.Event{Kind: eventlog.KindEnvironmentReset, Counts: map[string]int{"environments": n}})
	}

	plan, err := b.Plan(opts.Fresh)
	if err != nil {
		return nil, err
	}

	state.SetStage(buildstate.StagePurge)
	outputRoot := b.cfg.OutputPath()
	for _, doc := range plan.Diff.Removed {
		if b.purge(events, doc.ID, snapshot.ReasonRemoved) {
			summary.Purged++
		}
		if doc.Output != nil {
			if err := fsutil.RemoveOutput(outputRoot, doc.Output.Path); err != nil {
				b.logger.Warn("failed to remove stale output", "doc", doc.ID, "error", err)
			}
		}
		summary.Removed = append(summary.Removed, doc.ID)
		state.RecordDocument(doc.ID, OutcomeRemoved)
	}
	for _, change := range plan.Diff.Render {
		if change.Stale && b.purge(events, change.Doc.ID, change.Reason) {
			summary.Purged++
		}
	}
	summary.Unchanged = len(plan.Diff.Unchanged)
	for _, doc := range plan.Diff.Unchanged {
		state.RecordDocument(doc.ID, OutcomeUnchanged)
	}

	state.SetStage(buildstate.StageRender)
	if err := buildstate.Save(state, buildstate.Path(b.cfg.StatePath())); err != nil {
		b.logger.Warn("failed to save build state", "error", err)
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = b.cfg.Build.Jobs
	}
	results, err := b.renderAll(ctx, plan.Diff.Render, jobs, events)
	if err != nil {
		return nil, err
	}

	docs := append([]snapshot.Document(nil), plan.Diff.Unchanged...)
	for i, r := range results {
		report := Report{
			Doc:        r.doc.ID,
			Reason:     plan.Diff.Render[i].Reason,
			Directives: r.directives,
			Warnings:   r.warnings,
			Faults:     r.faults,
			Err:        r.err,
		}
		if r.doc.Output != nil {
			report.Size = r.doc.Output.Size
		}
		summary.Reports = append(summary.Reports, report)

		summary.Directives += r.directives
		summary.Warnings += r.warnings
		summary.Faults += r.faults
		if r.err != nil {
			summary.Failed = append(summary.Failed, r.doc.ID)
			if summary.failedSums == nil {
				summary.failedSums = make(map[string]string)
			}
			summary.failedSums[r.doc.ID] = r.doc.SHA256
			state.RecordDocument(r.doc.ID, OutcomeFailed)
			continue
		}
		summary.Rendered = append(summary.Rendered, r.doc.ID)
		state.RecordDocument(r.doc.ID, OutcomeRendered)
		docs = append(docs, r.doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })

	state.SetStage(buildstate.StageManifest)
	manifest, err := snapshot.NewManifest(summary.BuildID, b.cfg.SourceDir, docs)
	if err != nil {
		return nil, err
	}
	stateRoot := b.cfg.StatePath()
	if err := snapshot.SaveSnapshot(manifest, workspace.ManifestPath(stateRoot)); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	if err := snapshot.SaveSnapshot(manifest, workspace.SnapshotPath(stateRoot, manifest.SnapshotID)); err != nil {
		b.logger.Warn("failed to archive manifest", "snapshot", manifest.SnapshotID, "error", err)
	}

	if len(summary.Failed) > 0 {
		return manifest, fmt.Errorf("%d of %d %w", len(summary.Failed), len(results), ErrDocumentsFailed)
	}
	return manifest, nil
}

func (b *Builder) purge(events *eventlog.EventLog, docID string, reason snapshot.Reason) bool {
	if !b.lifecycle.OnDocumentPurged(docID, string(reason)) {
		return false
	}
	b.record(events, eventlog.Event{Kind: eventlog.KindDocumentPurged, Doc: docID, Reason: string(reason)})
	return true
}

// record writes evt; a failing event log does not fail the build.
func (b *Builder) record(events *eventlog.EventLog, evt eventlog.Event) {
	if err := events.Write(evt); err != nil {
		b.logger.Warn("failed to write event", "kind", evt.Kind, "error", err)
	}
}
