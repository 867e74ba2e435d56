package directive

import (
	"sort"
	"strconv"
	"strings"
)

// Formatting selects how a directive's results are rendered.
type Formatting string

const (
	// FormatInterpreter renders an interactive-session transcript.
	FormatInterpreter Formatting = "interpreter"
	// FormatSeparate renders the code followed by its aggregate output.
	FormatSeparate Formatting = "separate"
)

// ParseFormatting validates a formatting name.
func ParseFormatting(s string) (Formatting, bool) {
	switch f := Formatting(strings.TrimSpace(s)); f {
	case FormatInterpreter, FormatSeparate:
		return f, true
	default:
		return "", false
	}
}

// Options are the per-directive settings. Zero values fall back to the
// controller defaults.
type Options struct {
	// Encoding is the codec used to read an included file.
	Encoding string
	// TabWidth expands tabs in the interpreter transcript when positive.
	TabWidth int
	// Formatting is the rendering mode.
	Formatting Formatting
}

// ParseOptions converts raw ":name: value" pairs into Options.
func ParseOptions(raw map[string]string) (Options, error) {
	var opts Options

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := strings.TrimSpace(raw[name])
		switch name {
		case "encoding":
			if value == "" {
				return Options{}, configError("option :encoding: requires a value")
			}
			opts.Encoding = value
		case "tab-width":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Options{}, configError("option :tab-width: must be a positive integer, got %q", value)
			}
			opts.TabWidth = n
		case "formatting":
			f, ok := ParseFormatting(value)
			if !ok {
				return Options{}, configError("option :formatting: must be %q or %q, got %q",
					FormatInterpreter, FormatSeparate, value)
			}
			opts.Formatting = f
		default:
			return Options{}, configError("unknown option :%s:", name)
		}
	}

	return opts, nil
}
