package directive

// NodeKind identifies what a rendered node represents.
type NodeKind string

const (
	// NodeLiteral is a preformatted block: a transcript, code, or output.
	NodeLiteral NodeKind = "literal_block"
	// NodeWarning is a diagnostic shown in place of the directive.
	NodeWarning NodeKind = "warning"
)

// Highlighting languages attached to literal nodes.
const (
	LangTranscript = "pycon"
	LangCode       = "python"
	LangOutput     = "none"
)

// Node is one element of a directive's rendered result.
type Node struct {
	Kind NodeKind `json:"kind"`
	Text string   `json:"text"`

	// Language is the highlighting hint of a literal node.
	Language string `json:"language,omitempty"`

	// Source is the included file a literal node was read from.
	Source string `json:"source,omitempty"`

	// Line is the directive's line in the document.
	Line int `json:"line,omitempty"`
}

// Result is what one directive invocation produced.
type Result struct {
	Nodes []Node

	// Dependencies lists included files relative to the source root.
	Dependencies []string

	// Mode is the formatting that ran; empty when the directive was rejected.
	Mode Formatting

	// Failed reports that a snippet fault was rendered into the output.
	Failed bool

	// Err is set when the directive was replaced by a warning.
	Err *Error
}

// Warned reports whether the invocation produced a diagnostic instead of
// results.
func (r Result) Warned() bool {
	return r.Err != nil
}

func warning(err *Error, line int) Node {
	return Node{Kind: NodeWarning, Text: err.Msg, Line: line}
}

func literal(text, language, source string, line int) Node {
	return Node{Kind: NodeLiteral, Text: text, Language: language, Source: source, Line: line}
}
