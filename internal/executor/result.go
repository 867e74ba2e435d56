package executor

import "github.com/iambrandonn/docrun/internal/segment"

// FailureKind classifies a failed execution.
type FailureKind string

const (
	// KindParse means the text could not be parsed.
	KindParse FailureKind = "parse_error"
	// KindRuntime means the snippet faulted while running.
	KindRuntime FailureKind = "runtime_error"
)

// Failure is a contained execution failure. Message is the diagnostic shown
// in the rendered output.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Result is the outcome of one statement: captured output, and a Failure if
// the statement faulted. Output written before a fault is kept.
type Result struct {
	Output  string
	Failure *Failure
}

// Failed reports whether the statement faulted.
func (r Result) Failed() bool {
	return r.Failure != nil
}

// Text is what the transcript shows after the statement: the captured output
// followed by the failure message, if any.
func (r Result) Text() string {
	if r.Failure == nil {
		return r.Output
	}
	return joinOutput(r.Output, r.Failure.Message)
}

// Entry pairs a statement with its result in an interpreter-mode run.
type Entry struct {
	Statement segment.Statement
	Result    Result
}

// joinOutput appends msg to out, each ending in a newline.
func joinOutput(out, msg string) string {
	if out != "" && out[len(out)-1] != '\n' {
		out += "\n"
	}
	if msg != "" && msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	return out + msg
}
