// Package evaluator defines the capability that actually runs snippet code.
//
// The execution engine treats an Evaluator as opaque: it hands over a
// statement or a whole block plus the document's Environment and gets back
// nil, a *Fault (the snippet failed at runtime), a *segment.ParseError (the
// text did not parse) or some other error (the evaluator itself broke).
// Evaluators print to the writer they were built with, normally
// capture.Stdout, so output can be captured by redirecting that stream.
package evaluator

import (
	"context"
	"fmt"

	"github.com/iambrandonn/docrun/internal/environment"
	"github.com/iambrandonn/docrun/internal/segment"
)

// Evaluator executes snippet source against an Environment.
//
// Contract:
// - Concurrency: callers serialize calls that share an Environment.
// - Context: implementations should stop at the next safe point once ctx is done.
// - Errors: runtime faults return *Fault; unparsable text returns *segment.ParseError.
// - Side effects: bindings created before a fault stay in env.
type Evaluator interface {
	// ExecStatement runs one statement. A statement that is a single
	// expression prints the representation of its value, as an interactive
	// interpreter would, unless the value is None.
	ExecStatement(ctx context.Context, stmt segment.Statement, env *environment.Environment) error

	// ExecBlock runs src as one unit, without echoing expression values.
	ExecBlock(ctx context.Context, src string, env *environment.Environment) error
}

// Fault is a runtime failure inside snippet code.
type Fault struct {
	// Kind names the class of failure, e.g. "EvalError" or "NameError".
	Kind string

	// Message is the diagnostic a user running the snippet standalone would
	// see: a traceback with source positions followed by the error text.
	Message string

	// Err is the evaluator's underlying error.
	Err error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Faultf builds a Fault from a format string. Mostly useful to fakes.
func Faultf(kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
