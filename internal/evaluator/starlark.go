package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/iambrandonn/docrun/internal/capture"
	"github.com/iambrandonn/docrun/internal/environment"
	"github.com/iambrandonn/docrun/internal/segment"
)

// Starlark evaluates snippets with go.starlark.net.
//
// Module globals live in the document's Environment between calls and are
// never frozen, so values built by one directive can be mutated by a later
// one, the way a long-running interpreter session behaves.
type Starlark struct {
	out         io.Writer
	filename    string
	predeclared starlark.StringDict
	logger      *slog.Logger
}

// Option configures a Starlark evaluator.
type Option func(*Starlark)

// WithOutput sets where print() and echoed values are written.
func WithOutput(w io.Writer) Option {
	return func(s *Starlark) { s.out = w }
}

// WithFilename sets the file name used in tracebacks.
func WithFilename(name string) Option {
	return func(s *Starlark) { s.filename = name }
}

// WithPredeclared adds names visible to every snippet.
func WithPredeclared(names starlark.StringDict) Option {
	return func(s *Starlark) {
		for k, v := range names {
			s.predeclared[k] = v
		}
	}
}

// WithLogger sets the logger used for load() tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Starlark) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStarlark creates an evaluator that prints to capture.Stdout.
func NewStarlark(opts ...Option) *Starlark {
	s := &Starlark{
		out:         capture.Stdout,
		filename:    "<snippet>",
		predeclared: Builtins(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecStatement implements Evaluator.
func (s *Starlark) ExecStatement(ctx context.Context, stmt segment.Statement, env *environment.Environment) error {
	// Pad with blank lines so positions in tracebacks match the block.
	src := stmt.Code
	if stmt.Line > 1 {
		src = strings.Repeat("\n", stmt.Line-1) + src
	}

	f, err := segment.FileOptions.Parse(s.filename, src, 0)
	if err != nil {
		return toParseError(stmt.Code, err)
	}

	return s.run(ctx, env, func(thread *starlark.Thread, ld *loader, scope starlark.StringDict) (starlark.StringDict, error) {
		if expr := soleExpr(f); expr != nil {
			v, err := starlark.EvalExprOptions(f.Options, thread, expr, scope)
			if err != nil {
				return nil, err
			}
			if v != starlark.None {
				fmt.Fprintln(s.out, v.String())
			}
			return nil, nil
		}
		return s.exec(thread, ld, f, src, scope)
	})
}

// ExecBlock implements Evaluator.
func (s *Starlark) ExecBlock(ctx context.Context, src string, env *environment.Environment) error {
	src = segment.Normalize(src)

	f, err := segment.FileOptions.Parse(s.filename, src, 0)
	if err != nil {
		return toParseError(src, err)
	}

	return s.run(ctx, env, func(thread *starlark.Thread, ld *loader, scope starlark.StringDict) (starlark.StringDict, error) {
		return s.exec(thread, ld, f, src, scope)
	})
}

type runFunc func(thread *starlark.Thread, ld *loader, scope starlark.StringDict) (starlark.StringDict, error)

func (s *Starlark) run(ctx context.Context, env *environment.Environment, fn runFunc) error {
	scope := s.scope(env)
	ld := newLoader(s, env.DocID())

	thread := &starlark.Thread{
		Name: env.DocID(),
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(s.out, msg)
		},
		Load: ld.load,
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	globals, err := fn(thread, ld, scope)

	// Bindings made before a failure are kept.
	s.store(env, scope, globals)
	env.MarkRun()

	if err != nil {
		return s.classify(err)
	}
	return nil
}

// exec runs f as a module whose free names are looked up in scope when they
// are used, not when f is compiled. A function may therefore call one that a
// later statement defines, and sees later rebindings of names it does not
// bind itself. Names f binds at top level become module globals; those that
// already exist are loaded from scope first, so "x += 1" reads the current x.
func (s *Starlark) exec(thread *starlark.Thread, ld *loader, f *syntax.File, src string, scope starlark.StringDict) (starlark.StringDict, error) {
	isScoped := func(name string) bool {
		return scope.Has(name) || !starlark.Universe.Has(name)
	}

	prog, err := starlark.FileProgram(f, isScoped)
	if err != nil {
		return nil, err
	}

	seeds := make(starlark.StringDict)
	for _, b := range f.Module.(*resolve.Module).Globals {
		if v, ok := scope[b.First.Name]; ok {
			seeds[seedPrefix+b.First.Name] = v
		}
	}
	if len(seeds) > 0 {
		// The resolver has annotated f, so compile a fresh parse.
		f, err = segment.FileOptions.Parse(s.filename, src, 0)
		if err != nil {
			return nil, err
		}
		f.Stmts = append([]syntax.Stmt{seedLoad(f, seeds)}, f.Stmts...)
		if prog, err = starlark.FileProgram(f, isScoped); err != nil {
			return nil, err
		}
		ld.seeds = seeds
	}

	return prog.Init(thread, scope)
}

// seedModule is the load() module name under which exec offers the current
// values of rebound globals. It cannot name a file.
const (
	seedModule = "\x00scope"
	seedPrefix = "$"
)

// seedLoad builds load(seedModule, x="$x", ...) positioned at f's first
// statement. The "$" keeps names with a leading underscore loadable.
func seedLoad(f *syntax.File, seeds starlark.StringDict) *syntax.LoadStmt {
	pos := syntax.MakePosition(&f.Path, 1, 1)
	if len(f.Stmts) > 0 {
		pos = syntax.Start(f.Stmts[0])
	}

	load := &syntax.LoadStmt{
		Load:   pos,
		Module: &syntax.Literal{Token: syntax.STRING, TokenPos: pos, Raw: strconv.Quote(seedModule), Value: seedModule},
		Rparen: pos,
	}
	for _, key := range seeds.Keys() {
		load.From = append(load.From, &syntax.Ident{NamePos: pos, Name: key})
		load.To = append(load.To, &syntax.Ident{NamePos: pos, Name: strings.TrimPrefix(key, seedPrefix)})
	}
	return load
}

// scope returns the live module dictionary of env: predeclared names plus
// every binding. It is created once per environment so that functions keep
// seeing it after the statement that defined them, and is reconciled with
// env on each run.
func (s *Starlark) scope(env *environment.Environment) starlark.StringDict {
	scope, ok := env.State().(starlark.StringDict)
	if !ok {
		scope = make(starlark.StringDict, len(s.predeclared)+env.Len())
		for name, v := range s.predeclared {
			scope[name] = v
		}
		env.SetState(scope)
	}

	for name := range scope {
		if _, bound := env.Get(name); bound {
			continue
		}
		if pre, ok := s.predeclared[name]; ok {
			scope[name] = pre
		} else {
			delete(scope, name)
		}
	}
	env.Range(func(name string, value any) bool {
		if v, ok := value.(starlark.Value); ok {
			scope[name] = v
		} else {
			s.logger.Debug("skipping non-starlark binding", "doc", env.DocID(), "name", name)
		}
		return true
	})
	return scope
}

func (s *Starlark) store(env *environment.Environment, scope, globals starlark.StringDict) {
	for name, v := range globals {
		scope[name] = v
		if pre, ok := s.predeclared[name]; ok && pre == v {
			continue
		}
		env.Set(name, v)
	}
}

func (s *Starlark) classify(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		// A free name that is still unbound when it is used.
		if m := unboundName.FindStringSubmatch(evalErr.Msg); m != nil {
			named := *evalErr
			named.Msg = "undefined: " + m[1]
			return &Fault{Kind: "NameError", Message: named.Backtrace(), Err: err}
		}
		return &Fault{Kind: "EvalError", Message: evalErr.Backtrace(), Err: err}
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		return &Fault{Kind: "NameError", Message: formatResolveErrors(resolveErrs), Err: err}
	}

	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return toParseError("", err)
	}

	return err
}

var unboundName = regexp.MustCompile(`^internal error: predeclared variable (\S+) is uninitialized$`)

func formatResolveErrors(errs resolve.ErrorList) string {
	var sb strings.Builder
	sb.WriteString("Traceback (most recent call last):\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  %s: in <toplevel>\n", e.Pos)
	}
	for _, e := range errs {
		fmt.Fprintf(&sb, "Error: %s\n", e.Msg)
	}
	return sb.String()
}

func toParseError(text string, err error) *segment.ParseError {
	perr := &segment.ParseError{Text: text, Msg: err.Error()}
	var serr syntax.Error
	if errors.As(err, &serr) {
		perr.Line = int(serr.Pos.Line)
		perr.Col = int(serr.Pos.Col)
		perr.Msg = serr.Msg
	}
	return perr
}

// soleExpr returns the expression of a file holding exactly one expression
// statement, or nil.
func soleExpr(f *syntax.File) syntax.Expr {
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			return stmt.X
		}
	}
	return nil
}
