package document

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/docrun/internal/directive"
)

// Render writes the document with every directive replaced by the nodes of
// the matching result. results must hold one entry per directive, in order.
func (d *Document) Render(results []directive.Result) (string, error) {
	if want := len(d.Directives()); len(results) != want {
		return "", fmt.Errorf("document has %d directives but %d results were given", want, len(results))
	}

	var b strings.Builder
	next := 0
	for _, block := range d.Blocks {
		if block.Directive == nil {
			b.WriteString(block.Text)
			continue
		}
		for i, node := range results[next].Nodes {
			if i > 0 {
				b.WriteString("\n")
			}
			writeNode(&b, node, block.Directive.indent)
		}
		next++
	}
	return b.String(), nil
}

func writeNode(b *strings.Builder, node directive.Node, indent string) {
	switch node.Kind {
	case directive.NodeWarning:
		for i, line := range strings.Split(strings.TrimRight(node.Text, "\n"), "\n") {
			b.WriteString(indent)
			if i == 0 {
				b.WriteString("> **Warning:** ")
			} else if line == "" {
				b.WriteString(">")
			} else {
				b.WriteString("> ")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	default:
		text := node.Text
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		marker := strings.Repeat("`", max(3, longestRun(text, '`')+1))

		b.WriteString(indent + marker + infoString(node.Language) + "\n")
		for _, line := range strings.SplitAfter(text, "\n") {
			if line == "" {
				continue
			}
			if line != "\n" {
				b.WriteString(indent)
			}
			b.WriteString(line)
		}
		b.WriteString(indent + marker + "\n")
	}
}

func infoString(language string) string {
	switch language {
	case "":
		return ""
	case directive.LangOutput:
		return "text"
	default:
		return language
	}
}

func longestRun(s string, c byte) int {
	longest, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			longest = max(longest, cur)
		} else {
			cur = 0
		}
	}
	return longest
}
