package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/build"
	"github.com/iambrandonn/docrun/internal/transcript"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Render the documents that changed since the last build",
	Long: `Render every document whose source, included files or output changed
since the last build. With --watch, docrun keeps running and rebuilds on
change; environments of documents that did not change are kept.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("fresh", false, "Discard every environment and render all documents")
	cmd.Flags().BoolP("watch", "w", false, "Keep running and rebuild when documents change")
	cmd.Flags().Duration("interval", time.Second, "Polling interval for --watch")
	cmd.Flags().IntP("jobs", "j", 0, "Documents rendered in parallel (default: from config)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger.Debug("loaded configuration", "path", cfgPath)

	fresh, _ := cmd.Flags().GetBool("fresh")
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	jobs, _ := cmd.Flags().GetInt("jobs")

	rt := newRuntime(build.ControllerConfig(cfg), logger)
	out := cmd.OutOrStdout()
	formatter := transcript.NewFormatter(0)
	rt.lifecycle.OnPurge = func(docID, reason string) {
		fmt.Fprintln(out, formatter.FormatPurged(docID, reason))
	}

	builder := build.New(cfg, rt.controller, rt.lifecycle, logger)
	opts := build.Options{Fresh: fresh, Jobs: jobs}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if watch {
		fmt.Fprintf(out, "Watching %s (every %s, Ctrl+C to stop)\n", cfg.SourcePath(), interval)
		return builder.Watch(ctx, opts, interval, func(summary *build.Summary, err error) {
			printSummary(out, formatter, summary, err)
		})
	}

	summary, err := builder.Build(ctx, opts)
	printSummary(out, formatter, summary, err)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("build interrupted")
	}
	return err
}

func printSummary(out io.Writer, formatter *transcript.Formatter, summary *build.Summary, err error) {
	if summary == nil {
		if err != nil {
			fmt.Fprintf(out, "Build failed: %v\n", err)
		}
		return
	}

	for _, r := range summary.Reports {
		if r.Err != nil {
			fmt.Fprintf(out, "[%s] failed: %v\n", r.Doc, r.Err)
			continue
		}
		fmt.Fprintln(out, formatter.FormatWritten(r.Doc, r.Directives, r.Warnings+r.Faults, r.Size))
	}
	for _, doc := range summary.Removed {
		fmt.Fprintf(out, "[%s] removed\n", doc)
	}

	status := "complete"
	if err != nil {
		status = "failed"
	}
	fmt.Fprintf(out, "Build %s %s: %d rendered, %d unchanged, %d removed, %d failed; %d directives, %d warnings, %d faults (%s)\n",
		summary.BuildID, status,
		len(summary.Rendered), summary.Unchanged, len(summary.Removed), len(summary.Failed),
		summary.Directives, summary.Warnings, summary.Faults,
		summary.Duration.Round(time.Millisecond))
}
