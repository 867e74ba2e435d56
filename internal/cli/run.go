package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/build"
	"github.com/iambrandonn/docrun/internal/directive"
)

// ErrSnippetFailed makes the run command exit non-zero when the snippet
// faulted or was rejected. The details are already printed.
var ErrSnippetFailed = errors.New("snippet failed")

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run one snippet file and print its transcript",
	Long: `Run a Starlark snippet file (or standard input when no file or "-" is
given) the way a {run} directive would, and print the rendered result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("formatting", "f", "", "interpreter or separate (default: from config)")
	runCmd.Flags().StringP("encoding", "e", "", "Encoding of the snippet file (default: from config)")
	runCmd.Flags().Int("tab-width", 0, "Expand tabs in the transcript to this width")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	raw := map[string]string{}
	for _, name := range []string{"formatting", "encoding", "tab-width"} {
		if flag := cmd.Flags().Lookup(name); flag.Changed {
			raw[name] = flag.Value.String()
		}
	}

	dcfg := build.ControllerConfig(cfg)
	req := directive.Request{DocID: "run", Line: 1, RawOptions: raw}

	if len(args) == 1 && args[0] != "-" {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
		// The snippet's directory plays the document directory, so
		// read_file() and load() resolve next to it.
		dcfg.SourceRoot = filepath.Dir(abs)
		dcfg.FileInsertionEnabled = true
		req.DocPath = abs
		req.Argument = filepath.Base(abs)
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read standard input: %w", err)
		}
		text := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		if text != "" {
			req.Content = strings.Split(text, "\n")
		}
		dcfg.SourceRoot = ""
	}

	rt := newRuntime(dcfg, logger)
	res := rt.controller.Run(cmd.Context(), req)

	out := cmd.OutOrStdout()
	for i, node := range res.Nodes {
		switch node.Kind {
		case directive.NodeWarning:
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", node.Text)
		default:
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprint(out, node.Text)
		}
	}

	if res.Warned() || res.Failed {
		return ErrSnippetFailed
	}
	return nil
}
