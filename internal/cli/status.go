package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/buildstate"
	"github.com/iambrandonn/docrun/internal/eventlog"
	"github.com/iambrandonn/docrun/internal/snapshot"
	"github.com/iambrandonn/docrun/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last build",
	Long: `Show the state of the last build and the documents the next build
would render. With --events, also print the last build's directive events.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("events", false, "Print the event log of the last build")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	stateRoot := cfg.StatePath()

	state, err := buildstate.LoadIfExists(buildstate.Path(stateRoot))
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Fprintln(out, "No build has run yet.")
	} else {
		printState(out, state)
	}

	manifest, err := snapshot.LoadIfExists(workspace.ManifestPath(stateRoot))
	if err != nil {
		return err
	}
	docs, err := snapshot.Scan(cfg.SourcePath(), snapshot.ScanOptions{
		Extensions: cfg.Extensions,
		Exclude:    []string{cfg.OutputPath(), stateRoot},
	})
	if err != nil {
		return err
	}
	diff, err := snapshot.Compare(manifest, docs, cfg.SourcePath(), cfg.OutputPath())
	if err != nil {
		return err
	}

	if len(diff.Render) == 0 && len(diff.Removed) == 0 {
		fmt.Fprintf(out, "Up to date: %d documents.\n", len(diff.Unchanged))
	} else {
		fmt.Fprintln(out, "Next build:")
		for _, c := range diff.Render {
			fmt.Fprintf(out, "  render %s (%s)\n", c.Doc.ID, c.Reason)
		}
		for _, doc := range diff.Removed {
			fmt.Fprintf(out, "  remove %s\n", doc.ID)
		}
	}

	showEvents, _ := cmd.Flags().GetBool("events")
	if !showEvents || state == nil {
		return nil
	}

	events, err := eventlog.ReadFile(workspace.EventsPath(stateRoot, state.BuildID), logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Events:")
	for _, evt := range events {
		fmt.Fprintln(out, "  "+formatEvent(evt))
	}
	return nil
}

func printState(out io.Writer, state *buildstate.BuildState) {
	fmt.Fprintf(out, "Last build: %s (%s)\n", state.BuildID, state.Status)
	fmt.Fprintf(out, "  started:  %s\n", state.StartedAt.Local().Format(time.DateTime))
	if state.CompletedAt != nil {
		fmt.Fprintf(out, "  duration: %s\n", state.CompletedAt.Sub(state.StartedAt).Round(time.Millisecond))
	}
	if state.Interrupted() {
		fmt.Fprintf(out, "  interrupted during %s\n", state.CurrentStage)
	}
	if state.SnapshotID != "" {
		fmt.Fprintf(out, "  snapshot: %s\n", state.SnapshotID)
	}
	if len(state.Documents) > 0 {
		var parts []string
		for _, outcome := range []string{"rendered", "unchanged", "removed", "failed"} {
			if n := state.Documents[outcome]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, outcome))
			}
		}
		fmt.Fprintf(out, "  documents: %s\n", strings.Join(parts, ", "))
	}
	if state.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", state.Error)
	}
}

func formatEvent(evt eventlog.Event) string {
	var sb strings.Builder
	sb.WriteString(string(evt.Kind))
	if evt.Doc != "" {
		sb.WriteString(" " + evt.Doc)
		if evt.Line > 0 {
			fmt.Fprintf(&sb, ":%d", evt.Line)
		}
	}
	if evt.Mode != "" {
		sb.WriteString(" [" + evt.Mode + "]")
	}
	if evt.Status != "" {
		sb.WriteString(" " + evt.Status)
	}
	if evt.Reason != "" {
		sb.WriteString(" (" + evt.Reason + ")")
	}
	if evt.Message != "" {
		sb.WriteString(": " + strings.SplitN(evt.Message, "\n", 2)[0])
	}
	return sb.String()
}
