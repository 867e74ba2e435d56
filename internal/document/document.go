// Package document splits Markdown into verbatim text and {run} directive
// blocks, and renders directive results back into Markdown.
//
// A directive is a fenced code block whose info string starts with {run}:
//
//	```{run} optional/file.star
//	:formatting: separate
//
//	x = 1
//	print(x)
//	```
//
// Leading ":name: value" lines are options. One blank line may separate them
// from the content.
package document

import (
	"regexp"
	"strings"
)

// DirectiveName is the info-string marker of a directive fence.
const DirectiveName = "{run}"

var optionLine = regexp.MustCompile(`^:([A-Za-z0-9][A-Za-z0-9_-]*):(?:\s+(.*))?$`)

// Directive is one {run} block.
type Directive struct {
	// Line is the 1-based line of the opening fence.
	Line int
	// Argument is the text after {run}, a file to include.
	Argument string
	// Options maps option names to their raw values.
	Options map[string]string
	// Content holds the snippet lines, without the fence indentation.
	Content []string

	indent string
}

// Block is either verbatim Markdown or a directive.
type Block struct {
	Text      string
	Directive *Directive
}

// Document is a parsed Markdown file.
type Document struct {
	Blocks []Block
}

// Directives returns the directives in document order.
func (d *Document) Directives() []*Directive {
	var out []*Directive
	for _, b := range d.Blocks {
		if b.Directive != nil {
			out = append(out, b.Directive)
		}
	}
	return out
}

type fence struct {
	char   byte
	length int
	indent int
	info   string
}

// Parse splits src into blocks. Parse never fails: an unclosed fence runs to
// the end of the document, as in CommonMark.
func Parse(src string) *Document {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	lines := strings.SplitAfter(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	doc := &Document{}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			doc.Blocks = append(doc.Blocks, Block{Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(lines); i++ {
		open, ok := openingFence(lines[i])
		if !ok {
			text.WriteString(lines[i])
			continue
		}

		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if closesFence(lines[j], open) {
				end = j
				break
			}
		}
		last := end
		if last == len(lines) {
			last = len(lines) - 1
		}

		if !isDirective(open.info) {
			for k := i; k <= last; k++ {
				text.WriteString(lines[k])
			}
			i = last
			continue
		}

		flush()
		body := make([]string, 0, end-i-1)
		for _, line := range lines[i+1 : end] {
			body = append(body, stripIndent(strings.TrimSuffix(line, "\n"), open.indent))
		}
		d := newDirective(i+1, strings.TrimSpace(strings.TrimPrefix(open.info, DirectiveName)), body)
		d.indent = strings.Repeat(" ", open.indent)
		doc.Blocks = append(doc.Blocks, Block{Directive: d})
		i = last
	}
	flush()

	return doc
}

func isDirective(info string) bool {
	if !strings.HasPrefix(info, DirectiveName) {
		return false
	}
	rest := info[len(DirectiveName):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

func openingFence(line string) (fence, bool) {
	line = strings.TrimSuffix(line, "\n")
	indent := leadingSpaces(line)
	if indent > 3 {
		return fence{}, false
	}
	rest := line[indent:]
	if len(rest) < 3 || (rest[0] != '`' && rest[0] != '~') {
		return fence{}, false
	}
	n := run(rest, rest[0])
	if n < 3 {
		return fence{}, false
	}
	info := strings.TrimSpace(rest[n:])
	if rest[0] == '`' && strings.Contains(info, "`") {
		return fence{}, false
	}
	return fence{char: rest[0], length: n, indent: indent, info: info}, true
}

func closesFence(line string, open fence) bool {
	line = strings.TrimSuffix(line, "\n")
	indent := leadingSpaces(line)
	if indent > 3 {
		return false
	}
	rest := line[indent:]
	n := run(rest, open.char)
	return n >= open.length && strings.TrimSpace(rest[n:]) == ""
}

func newDirective(line int, argument string, body []string) *Directive {
	d := &Directive{Line: line, Argument: argument, Options: map[string]string{}}

	i := 0
	for ; i < len(body); i++ {
		m := optionLine.FindStringSubmatch(body[i])
		if m == nil {
			break
		}
		d.Options[m[1]] = strings.TrimSpace(m[2])
	}

	start, end := i, len(body)
	for start < end && strings.TrimSpace(body[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(body[end-1]) == "" {
		end--
	}
	if start < end {
		d.Content = body[start:end]
	}
	return d
}

func leadingSpaces(s string) int {
	return run(s, ' ')
}

func run(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func stripIndent(line string, n int) string {
	return line[min(leadingSpaces(line), n):]
}
