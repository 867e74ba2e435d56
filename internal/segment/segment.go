// Package segment splits a block of snippet source into top-level statements.
//
// Segmentation is lossless: concatenating the Text of every Statement, in
// order, reproduces the input. The only normalization applied is that "\r\n"
// line endings become "\n". Blank and comment-only input yields an empty
// sequence.
package segment

import (
	"fmt"
	"iter"
	"strings"
)

// Statement is one top-level unit of a snippet.
type Statement struct {
	// Index is the 0-based position of the statement in its block.
	Index int

	// Line is the 1-based line in the block where Code starts.
	Line int

	// Text is the raw source owned by the statement, including the blank
	// and comment lines that precede it.
	Text string

	// Code is the source from the statement's first to its last line.
	Code string

	// Compound is set for statements with an indented body (def, if, for,
	// while). An interactive session closes them with an empty "..." line.
	Compound bool
}

// Lines returns the physical lines of Code without trailing newlines.
func (s Statement) Lines() []string {
	return strings.Split(strings.TrimRight(s.Code, "\n"), "\n")
}

// Statements is a finite, restartable sequence of statements.
type Statements struct {
	src   string
	lines []string
	spans []span
}

// span is a statement's extent as 0-based half-open line ranges.
type span struct {
	textStart int
	codeStart int
	end       int
	compound  bool
}

// Len returns the number of statements.
func (s *Statements) Len() int {
	return len(s.spans)
}

// All yields every statement in source order. Statement text is materialized
// lazily, so iterating twice does not retain copies.
func (s *Statements) All() iter.Seq2[int, Statement] {
	return func(yield func(int, Statement) bool) {
		for i := range s.spans {
			if !yield(i, s.at(i)) {
				return
			}
		}
	}
}

// Slice collects the sequence into a slice.
func (s *Statements) Slice() []Statement {
	out := make([]Statement, 0, len(s.spans))
	for _, stmt := range s.All() {
		out = append(out, stmt)
	}
	return out
}

// Source returns the normalized source the statements were cut from.
func (s *Statements) Source() string {
	return s.src
}

func (s *Statements) at(i int) Statement {
	sp := s.spans[i]
	end := sp.end
	if i == len(s.spans)-1 {
		end = len(s.lines)
	}
	return Statement{
		Index:    i,
		Line:     sp.codeStart + 1,
		Text:     strings.Join(s.lines[sp.textStart:end], ""),
		Code:     strings.Join(s.lines[sp.codeStart:sp.end], ""),
		Compound: sp.compound,
	}
}

// ParseError reports source that could not be segmented.
type ParseError struct {
	// Text is the offending source, verbatim.
	Text string

	// Line and Col locate the problem, 1-based. Zero means unknown.
	Line int
	Col  int

	Msg string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d, col %d: %s", e.Line, e.Col, e.Msg)
	}
	return "syntax error: " + e.Msg
}

// Segmenter splits source text into statements.
//
// Implementations must not execute anything and must return *ParseError for
// malformed input.
type Segmenter interface {
	Segment(src string) (*Statements, error)
}

// Normalize applies the segmenter's line-ending normalization.
func Normalize(src string) string {
	return strings.ReplaceAll(src, "\r\n", "\n")
}

// extent is one parsed statement's 1-based, inclusive line range.
type extent struct {
	first, last int
	compound    bool
}

// build assembles Statements from per-statement extents in ascending order.
// Overlapping extents are merged, so several statements sharing a physical
// line become one Statement, compound when any of them is.
func build(src string, extents []extent) *Statements {
	lines := strings.SplitAfter(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var spans []span
	for _, ext := range extents {
		first, last := ext.first-1, ext.last
		if last > len(lines) {
			last = len(lines)
		}
		if n := len(spans); n > 0 && first < spans[n-1].end {
			if last > spans[n-1].end {
				spans[n-1].end = last
			}
			spans[n-1].compound = spans[n-1].compound || ext.compound
			continue
		}
		textStart := 0
		if n := len(spans); n > 0 {
			textStart = spans[n-1].end
		}
		spans = append(spans, span{textStart: textStart, codeStart: first, end: last, compound: ext.compound})
	}

	return &Statements{src: src, lines: lines, spans: spans}
}
