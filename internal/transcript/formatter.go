package transcript

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/docrun/internal/executor"
)

const (
	promptFirst = ">>> "
	promptMore  = "... "
)

// Formatter renders execution results as documentation text.
type Formatter struct {
	// TabWidth expands tabs in interpreter transcripts when positive.
	TabWidth int
}

// NewFormatter creates a new transcript formatter
func NewFormatter(tabWidth int) *Formatter {
	return &Formatter{TabWidth: tabWidth}
}

// FormatInterpreter renders entries as an interactive session: the first line
// of each statement after ">>> ", continuation lines after "... ", then the
// statement's output or failure message.
func (f *Formatter) FormatInterpreter(entries []executor.Entry) string {
	var sb strings.Builder

	for _, entry := range entries {
		lines := entry.Statement.Lines()
		sb.WriteString(promptFirst + lines[0] + "\n")
		for _, l := range lines[1:] {
			sb.WriteString(promptMore + l + "\n")
		}
		// Compound statements are closed by an empty continuation line.
		if entry.Statement.Compound {
			sb.WriteString(strings.TrimSpace(promptMore) + "\n")
		}
		sb.WriteString(entry.Result.Text())
	}

	text := sb.String()
	if f.TabWidth > 0 {
		text = ExpandTabs(text, f.TabWidth)
	}
	return text
}

// FormatSeparate returns the code block text and the output block text. The
// code keeps its layout except that trailing blank lines collapse into a
// single newline. The output is empty when the code printed nothing and did
// not fail.
func (f *Formatter) FormatSeparate(code, output string) (string, string) {
	code = strings.TrimRight(code, "\n")
	if code != "" {
		code += "\n"
	}
	return code, output
}

// FormatWritten formats a rendered document for console display
func (f *Formatter) FormatWritten(docID string, directives, failures int, bytes int64) string {
	details := fmt.Sprintf("%d directive(s)", directives)
	if failures > 0 {
		details += fmt.Sprintf(", %d failed", failures)
	}
	return fmt.Sprintf("[%s] rendered: %s (%s)", docID, details, f.formatSize(bytes))
}

// FormatPurged formats a lifecycle purge for console display
func (f *Formatter) FormatPurged(docID, reason string) string {
	return fmt.Sprintf("[%s] environment purged: %s", docID, reason)
}

// ExpandTabs replaces tabs with spaces up to the next multiple of width,
// counting columns from the start of each line.
func ExpandTabs(s string, width int) string {
	if width <= 0 || !strings.Contains(s, "\t") {
		return s
	}

	var sb strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := width - col%width
			sb.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			sb.WriteRune(r)
			col = 0
		default:
			sb.WriteRune(r)
			col++
		}
	}
	return sb.String()
}

// formatSize formats a byte size in a human-readable format
func (f *Formatter) formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
