package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/build"
	"github.com/iambrandonn/docrun/internal/segment"
	"github.com/iambrandonn/docrun/internal/workctx"
)

const (
	replPrompt = ">>> "
	replMore   = "... "

	// replDocID keys the session's environment.
	replDocID = "repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive Starlark session",
	Long: `Start an interactive session with the same builtins and load() search
path as {run} directives. Compound statements end with an empty line.

Commands: :vars lists bindings, :reset clears them, :quit exits.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	replCmd.Flags().Bool("no-history", false, "Do not read or write ~/.docrun_history")
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOrDefault(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	histPath := ""
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		if home, err := os.UserHomeDir(); err == nil {
			histPath = filepath.Join(home, ".docrun_history")
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       histPath,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	dcfg := build.ControllerConfig(cfg)
	extra := []string{cwd}
	for _, dir := range dcfg.SearchPath {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(dcfg.SourceRoot, dir)
		}
		extra = append(extra, dir)
	}
	wc, err := workctx.Enter(cwd, extra...)
	if err != nil {
		return err
	}
	defer func() {
		if err := wc.Restore(); err != nil {
			logger.Error("failed to restore working context", "error", err)
		}
	}()

	session := newREPLSession(newRuntime(dcfg, logger), rl.Stdout())
	fmt.Fprintln(rl.Stdout(), "docrun REPL. :vars, :reset, :quit. Empty line ends a block.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if session.pending() {
				session.cancel()
				fmt.Fprintln(rl.Stdout(), "(block cancelled)")
				rl.SetPrompt(replPrompt)
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		prompt, quit := session.feed(cmd.Context(), line)
		if quit {
			return nil
		}
		rl.SetPrompt(prompt)
	}
}

// replSession turns input lines into executed chunks against one
// environment.
type replSession struct {
	rt  *runtime
	out io.Writer

	buf   []string
	block bool
}

func newREPLSession(rt *runtime, out io.Writer) *replSession {
	return &replSession{rt: rt, out: out}
}

func (s *replSession) pending() bool {
	return len(s.buf) > 0
}

func (s *replSession) cancel() {
	s.buf = nil
	s.block = false
}

// feed consumes one line and returns the prompt for the next. A chunk runs
// once it is complete: a simple statement with balanced brackets, or a
// compound statement followed by an empty line.
func (s *replSession) feed(ctx context.Context, line string) (prompt string, quit bool) {
	trimmed := strings.TrimSpace(line)

	if !s.pending() {
		if strings.HasPrefix(trimmed, ":") {
			return replPrompt, s.command(trimmed)
		}
		if trimmed == "" {
			return replPrompt, false
		}
	}

	s.buf = append(s.buf, line)
	text := strings.Join(s.buf, "\n")

	switch {
	case s.block:
		if trimmed != "" {
			return replMore, false
		}
	case strings.HasSuffix(strings.TrimRight(line, " \t"), ":"):
		s.block = true
		return replMore, false
	case openBrackets(text) > 0 || strings.HasSuffix(strings.TrimRight(line, " \t"), "\\"):
		return replMore, false
	}

	s.cancel()
	s.run(ctx, text)
	return replPrompt, false
}

func (s *replSession) run(ctx context.Context, text string) {
	stmts, err := s.rt.segmenter.Segment(text)
	if err != nil {
		var perr *segment.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintln(s.out, perr.Error())
			return
		}
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}

	env, _ := s.rt.store.GetOrCreate(replDocID)
	entries, err := s.rt.exec.Interpret(ctx, stmts, env)
	for _, entry := range entries {
		fmt.Fprint(s.out, entry.Result.Text())
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *replSession) command(cmd string) bool {
	switch cmd {
	case ":quit", ":q", ":exit":
		return true
	case ":vars":
		env, ok := s.rt.store.Lookup(replDocID)
		if !ok || env.Len() == 0 {
			fmt.Fprintln(s.out, "(no bindings)")
			return false
		}
		names := env.Names()
		sort.Strings(names)
		for _, name := range names {
			v, _ := env.Get(name)
			fmt.Fprintf(s.out, "%s = %v\n", name, v)
		}
	case ":reset":
		s.rt.lifecycle.OnDocumentPurged(replDocID, "reset")
		fmt.Fprintln(s.out, "(environment cleared)")
	case ":help":
		fmt.Fprintln(s.out, ":vars   list bindings\n:reset  clear all bindings\n:quit   exit")
	default:
		fmt.Fprintf(s.out, "unknown command %s (try :help)\n", cmd)
	}
	return false
}

// openBrackets counts brackets left open in src, ignoring string literals
// and comments.
func openBrackets(src string) int {
	depth := 0
	var quote byte
	triple := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch {
			case c == '\\':
				i++
			case triple && strings.HasPrefix(src[i:], strings.Repeat(string(quote), 3)):
				quote, triple = 0, false
				i += 2
			case !triple && c == quote:
				quote = 0
			case !triple && c == '\n':
				quote = 0
			}
			continue
		}

		switch c {
		case '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '"', '\'':
			quote = c
			if strings.HasPrefix(src[i:], strings.Repeat(string(c), 3)) {
				triple = true
				i += 2
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	if quote != 0 && triple {
		// An open triple-quoted string continues on the next line.
		return depth + 1
	}
	return depth
}
