package segment

import (
	"errors"

	"go.starlark.net/syntax"
)

// FileOptions is the Starlark dialect docrun accepts. Snippets read like
// Python scripts, so top-level control flow, while loops, sets, recursion and
// rebinding of globals are all enabled.
var FileOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	LoadBindsGlobally: true,
	Recursion:         true,
}

// Starlark segments source with the go.starlark.net parser.
type Starlark struct {
	// Filename is reported in parse positions. Defaults to "<snippet>".
	Filename string
}

// NewStarlark returns a segmenter for the docrun Starlark dialect.
func NewStarlark() *Starlark {
	return &Starlark{Filename: "<snippet>"}
}

// Segment parses src and returns its top-level statements.
func (s *Starlark) Segment(src string) (*Statements, error) {
	src = Normalize(src)

	name := s.Filename
	if name == "" {
		name = "<snippet>"
	}

	f, err := FileOptions.Parse(name, src, 0)
	if err != nil {
		perr := &ParseError{Text: src, Msg: err.Error()}
		var serr syntax.Error
		if errors.As(err, &serr) {
			perr.Line = int(serr.Pos.Line)
			perr.Col = int(serr.Pos.Col)
			perr.Msg = serr.Msg
		}
		return nil, perr
	}

	extents := make([]extent, 0, len(f.Stmts))
	for _, stmt := range f.Stmts {
		start, end := stmt.Span()
		extents = append(extents, extent{
			first:    int(start.Line),
			last:     int(end.Line),
			compound: isCompound(stmt),
		})
	}

	return build(src, extents), nil
}

func isCompound(stmt syntax.Stmt) bool {
	switch stmt.(type) {
	case *syntax.DefStmt, *syntax.IfStmt, *syntax.ForStmt, *syntax.WhileStmt:
		return true
	}
	return false
}
