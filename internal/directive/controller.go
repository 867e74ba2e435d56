// Package directive runs one {run} directive: it validates the request,
// resolves and decodes an included file, establishes the working context,
// executes the snippet against the document's Environment, and returns the
// rendered nodes. Every failure is turned into a warning node.
package directive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iambrandonn/docrun/internal/environment"
	"github.com/iambrandonn/docrun/internal/executor"
	"github.com/iambrandonn/docrun/internal/segment"
	"github.com/iambrandonn/docrun/internal/transcript"
	"github.com/iambrandonn/docrun/internal/workctx"
)

// invocationMu serializes controller invocations process-wide. The working
// directory, the search path and capture.Stdout are shared by all of them.
var invocationMu sync.Mutex

// Request describes one directive occurrence in a document.
type Request struct {
	// DocID is the document key owning the Environment.
	DocID string
	// DocPath is the document file; its directory becomes the working
	// directory. Empty means the current directory.
	DocPath string
	// Line is the directive's line in the document.
	Line int
	// Argument is the optional file argument.
	Argument string
	// Content holds the inline snippet lines.
	Content []string
	// Options are the directive's options.
	Options Options
	// RawOptions, when non-nil, are parsed with ParseOptions and replace
	// Options. A parse failure rejects the directive.
	RawOptions map[string]string
}

// Config holds the controller defaults.
type Config struct {
	// SourceRoot anchors "/"-prefixed file arguments and dependency paths.
	SourceRoot string
	// DefaultEncoding is used when a directive gives no :encoding:.
	DefaultEncoding string
	// DefaultFormatting is used when a directive gives no :formatting:.
	DefaultFormatting Formatting
	// DefaultTabWidth is used when a directive gives no :tab-width:.
	DefaultTabWidth int
	// FileInsertionEnabled allows directives to include files.
	FileInsertionEnabled bool
	// SearchPath is appended to the module search path for every invocation,
	// after the document directory.
	SearchPath []string
}

// Controller executes directives.
type Controller struct {
	cfg       Config
	store     *environment.Store
	segmenter segment.Segmenter
	exec      *executor.Executor
	logger    *slog.Logger
}

// NewController creates a controller.
func NewController(cfg Config, store *environment.Store, segmenter segment.Segmenter, exec *executor.Executor, logger *slog.Logger) *Controller {
	if cfg.DefaultEncoding == "" {
		cfg.DefaultEncoding = "utf-8"
	}
	if cfg.DefaultFormatting == "" {
		cfg.DefaultFormatting = FormatInterpreter
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		cfg:       cfg,
		store:     store,
		segmenter: segmenter,
		exec:      exec,
		logger:    logger,
	}
}

// Store returns the environment registry the controller executes against.
func (c *Controller) Store() *environment.Store {
	return c.store
}

// Run executes req and returns its rendered nodes. It never fails: problems
// are reported as a single warning node and in Result.Err.
func (c *Controller) Run(ctx context.Context, req Request) (res Result) {
	logger := c.logger.With("doc", req.DocID, "line", req.Line)

	var text string
	defer func() {
		if r := recover(); r != nil {
			logger.Error("directive panicked", "panic", r)
			res = c.reject(req, unexpectedError(r, text))
		}
	}()

	hasContent := len(req.Content) > 0
	hasFile := strings.TrimSpace(req.Argument) != ""
	switch {
	case hasContent && hasFile:
		return c.reject(req, configError("run directive must have either a file argument or code content, but not both"))
	case !hasContent && !hasFile:
		return c.reject(req, configError("run directive must have either a file argument or code content"))
	case hasFile && !c.cfg.FileInsertionEnabled:
		return c.reject(req, configError("File insertion disabled"))
	}

	opts := req.Options
	if req.RawOptions != nil {
		parsed, err := ParseOptions(req.RawOptions)
		if err != nil {
			var derr *Error
			if errors.As(err, &derr) {
				return c.reject(req, derr)
			}
			return c.reject(req, configError("%v", err))
		}
		opts = parsed
	}

	mode := opts.Formatting
	if mode == "" {
		mode = c.cfg.DefaultFormatting
	}
	if _, ok := ParseFormatting(string(mode)); !ok {
		return c.reject(req, configError("unknown formatting %q", mode))
	}
	tabWidth := opts.TabWidth
	if tabWidth == 0 {
		tabWidth = c.cfg.DefaultTabWidth
	}
	if tabWidth < 0 {
		return c.reject(req, configError("tab width must not be negative, got %d", tabWidth))
	}

	// Relative paths resolve against the working directory, which another
	// invocation may have changed, so resolve them under the lock.
	invocationMu.Lock()
	defer invocationMu.Unlock()

	docDir, err := c.docDir(req.DocPath)
	if err != nil {
		return c.reject(req, unexpectedError(err, ""))
	}

	var source string
	var deps []string
	if hasFile {
		rel, abs := resolvePath(c.sourceRoot(docDir), docDir, req.Argument)
		encoding := opts.Encoding
		if encoding == "" {
			encoding = c.cfg.DefaultEncoding
		}
		text, err = readSource(abs, encoding)
		if err != nil {
			// The file stays a dependency so that creating or fixing it
			// triggers a rebuild.
			var derr *Error
			if !errors.As(err, &derr) {
				derr = unexpectedError(err, "")
			}
			res := c.reject(req, derr)
			res.Dependencies = []string{rel}
			return res
		}
		source = abs
		deps = append(deps, rel)
	} else {
		text = strings.Join(req.Content, "\n")
	}

	extra := []string{docDir}
	for _, dir := range c.cfg.SearchPath {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.sourceRoot(docDir), dir)
		}
		extra = append(extra, dir)
	}
	wc, err := workctx.Enter(docDir, extra...)
	if err != nil {
		return c.reject(req, unexpectedError(err, text))
	}
	defer func() {
		if err := wc.Restore(); err != nil {
			logger.Error("failed to restore working context", "error", err)
		}
	}()

	env, created := c.store.GetOrCreate(req.DocID)
	if created {
		logger.Debug("environment created")
	}

	logger.Debug("running directive", "mode", mode, "file", source)

	switch mode {
	case FormatSeparate:
		res = c.runSeparate(ctx, req, text, source, env)
	default:
		res = c.runInterpreter(ctx, req, text, source, tabWidth, env)
	}
	res.Dependencies = deps
	return res
}

func (c *Controller) runInterpreter(ctx context.Context, req Request, text, source string, tabWidth int, env *environment.Environment) Result {
	stmts, err := c.segmenter.Segment(text)
	if err != nil {
		var perr *segment.ParseError
		if errors.As(err, &perr) {
			return c.reject(req, parseError(text, err))
		}
		return c.reject(req, unexpectedError(err, text))
	}

	entries, err := c.exec.Interpret(ctx, stmts, env)
	if err != nil {
		return c.reject(req, unexpectedError(err, text))
	}

	failed := len(entries) > 0 && entries[len(entries)-1].Result.Failed()
	out := transcript.NewFormatter(tabWidth).FormatInterpreter(entries)
	return Result{
		Nodes:  []Node{literal(out, LangTranscript, source, req.Line)},
		Mode:   FormatInterpreter,
		Failed: failed,
	}
}

func (c *Controller) runSeparate(ctx context.Context, req Request, text, source string, env *environment.Environment) Result {
	out, failed, err := c.exec.Separate(ctx, text, env)
	if err != nil {
		return c.reject(req, unexpectedError(err, text))
	}

	code, output := transcript.NewFormatter(0).FormatSeparate(text, out)
	nodes := []Node{literal(code, LangCode, source, req.Line)}
	if output != "" {
		nodes = append(nodes, literal(output, LangOutput, "", req.Line))
	}
	return Result{Nodes: nodes, Mode: FormatSeparate, Failed: failed}
}

func (c *Controller) reject(req Request, err *Error) Result {
	c.logger.Warn("directive rejected", "doc", req.DocID, "line", req.Line, "error", err)
	return Result{Nodes: []Node{warning(err, req.Line)}, Err: err}
}

func (c *Controller) docDir(docPath string) (string, error) {
	if docPath == "" {
		dir, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to read working directory: %w", err)
		}
		return dir, nil
	}
	abs, err := filepath.Abs(docPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve document path %s: %w", docPath, err)
	}
	return filepath.Dir(abs), nil
}

func (c *Controller) sourceRoot(docDir string) string {
	if c.cfg.SourceRoot == "" {
		return docDir
	}
	if abs, err := filepath.Abs(c.cfg.SourceRoot); err == nil {
		return abs
	}
	return c.cfg.SourceRoot
}
