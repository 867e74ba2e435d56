// Package executor runs snippet statements and blocks against a document's
// Environment, captures what they print, and turns snippet faults into
// contained Failures.
//
// Two algorithms sit on top of the single-statement and whole-block calls:
//
//   - Interpret runs statements one at a time and stops at the first failure,
//     keeping every entry up to and including the failing one.
//   - Separate runs the whole text once and appends any failure to the
//     captured output.
//
// Only faults of the evaluator itself escape as errors.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iambrandonn/docrun/internal/capture"
	"github.com/iambrandonn/docrun/internal/environment"
	"github.com/iambrandonn/docrun/internal/evaluator"
	"github.com/iambrandonn/docrun/internal/segment"
)

// Executor runs code through an Evaluator with output capture.
type Executor struct {
	eval   evaluator.Evaluator
	stream *capture.Stream
	logger *slog.Logger
}

// New creates an Executor. stream must be the stream eval prints to; nil
// means capture.Stdout.
func New(eval evaluator.Evaluator, stream *capture.Stream, logger *slog.Logger) *Executor {
	if stream == nil {
		stream = capture.Stdout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{eval: eval, stream: stream, logger: logger}
}

// ExecuteStatement runs one statement against env. Snippet faults are
// reported in Result.Failure; the error is non-nil only when the evaluator
// itself failed.
func (e *Executor) ExecuteStatement(ctx context.Context, stmt segment.Statement, env *environment.Environment) (Result, error) {
	out, err := capture.With(e.stream, func() error {
		return e.eval.ExecStatement(ctx, stmt, env)
	})
	if err == nil {
		return Result{Output: out}, nil
	}

	failure, ok := classify(err)
	if !ok {
		return Result{Output: out}, fmt.Errorf("failed to execute statement %d: %w", stmt.Index, err)
	}
	e.logger.Debug("statement failed",
		"doc", env.DocID(),
		"statement", stmt.Index,
		"line", stmt.Line,
		"kind", failure.Kind)
	return Result{Output: out, Failure: failure}, nil
}

// ExecuteBlock runs text as a single unit against env. Output captured before
// a fault is returned together with the Failure.
func (e *Executor) ExecuteBlock(ctx context.Context, text string, env *environment.Environment) (string, *Failure, error) {
	out, err := capture.With(e.stream, func() error {
		return e.eval.ExecBlock(ctx, text, env)
	})
	if err == nil {
		return out, nil, nil
	}

	failure, ok := classify(err)
	if !ok {
		return out, nil, fmt.Errorf("failed to execute block: %w", err)
	}
	e.logger.Debug("block failed", "doc", env.DocID(), "kind", failure.Kind)
	return out, failure, nil
}

// Interpret runs stmts in order and stops after the first failing statement.
// The failing entry is included; later statements are not run.
func (e *Executor) Interpret(ctx context.Context, stmts *segment.Statements, env *environment.Environment) ([]Entry, error) {
	entries := make([]Entry, 0, stmts.Len())
	for _, stmt := range stmts.All() {
		if err := ctx.Err(); err != nil {
			return entries, fmt.Errorf("interpreter run interrupted: %w", err)
		}

		res, err := e.ExecuteStatement(ctx, stmt, env)
		if err != nil {
			return entries, err
		}
		entries = append(entries, Entry{Statement: stmt, Result: res})
		if res.Failed() {
			break
		}
	}
	return entries, nil
}

// Separate runs text as one block and returns the aggregate output with any
// failure message appended. failed reports whether the block faulted.
func (e *Executor) Separate(ctx context.Context, text string, env *environment.Environment) (output string, failed bool, err error) {
	out, failure, err := e.ExecuteBlock(ctx, text, env)
	if err != nil {
		return out, false, err
	}
	if failure != nil {
		return joinOutput(out, failure.Message), true, nil
	}
	return out, false, nil
}

func classify(err error) (*Failure, bool) {
	var fault *evaluator.Fault
	if errors.As(err, &fault) {
		return &Failure{Kind: KindRuntime, Message: fault.Message}, true
	}

	var perr *segment.ParseError
	if errors.As(err, &perr) {
		return &Failure{Kind: KindParse, Message: formatParseError(perr)}, true
	}

	return nil, false
}

func formatParseError(perr *segment.ParseError) string {
	if perr.Line > 0 {
		return fmt.Sprintf("SyntaxError: %s (line %d, col %d)\n", perr.Msg, perr.Line, perr.Col)
	}
	return fmt.Sprintf("SyntaxError: %s\n", perr.Msg)
}
