package build

import (
	"context"
	"fmt"
	"time"
)

// Watch builds once and then polls the source tree every interval,
// rebuilding in-process whenever documents or their dependencies change.
// Environments of untouched documents survive between rebuilds. report, if
// set, receives the outcome of every build. Watch returns nil when ctx ends.
func (b *Builder) Watch(ctx context.Context, opts Options, interval time.Duration, report func(*Summary, error)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	// failed maps documents that could not be rendered to the checksum they
	// had, so an unchanged failure is not rebuilt on every tick.
	var failed map[string]string
	build := func() {
		summary, err := b.Build(ctx, opts)
		opts.Fresh = false
		failed = nil
		if summary != nil {
			failed = summary.failedSums
		}
		if report != nil {
			report(summary, err)
		}
	}

	build()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		plan, err := b.Plan(false)
		if err != nil {
			b.logger.Warn("failed to check for changes", "error", err)
			continue
		}

		pending := len(plan.Diff.Removed)
		for _, c := range plan.Diff.Render {
			if sum, ok := failed[c.Doc.ID]; ok && sum == c.Doc.SHA256 {
				continue
			}
			pending++
		}
		if pending == 0 {
			continue
		}

		b.logger.Info("changes detected", "render", len(plan.Diff.Render), "removed", len(plan.Diff.Removed))
		build()
	}
}
