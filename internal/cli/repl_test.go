package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/docrun/internal/directive"
)

func TestREPLSession(t *testing.T) {
	var out bytes.Buffer
	session := newREPLSession(newRuntime(directive.Config{}, nil), &out)
	ctx := context.Background()

	steps := []struct {
		line   string
		prompt string
		output string
	}{
		{"", replPrompt, ""},
		{"x = 21", replPrompt, ""},
		{"x", replPrompt, "21\n"},
		{"def double(a):", replMore, ""},
		{"    return a * 2", replMore, ""},
		{"", replPrompt, ""},
		{"double(x)", replPrompt, "42\n"},
		{"print(1,", replMore, ""},
		{"  2)", replPrompt, "1 2\n"},
		{"s = '(' # )", replPrompt, ""},
		{"len(s)", replPrompt, "1\n"},
	}

	for _, step := range steps {
		out.Reset()
		prompt, quit := session.feed(ctx, step.line)
		assert.False(t, quit)
		assert.Equal(t, step.prompt, prompt, "prompt after %q", step.line)
		assert.Equal(t, step.output, out.String(), "output after %q", step.line)
	}
}

func TestREPLSession_Commands(t *testing.T) {
	var out bytes.Buffer
	session := newREPLSession(newRuntime(directive.Config{}, nil), &out)
	ctx := context.Background()

	session.feed(ctx, ":vars")
	assert.Equal(t, "(no bindings)\n", out.String())

	session.feed(ctx, "b = 2")
	session.feed(ctx, "a = 1")
	out.Reset()
	session.feed(ctx, ":vars")
	assert.Equal(t, "a = 1\nb = 2\n", out.String())

	out.Reset()
	session.feed(ctx, ":reset")
	session.feed(ctx, "a")
	assert.Contains(t, out.String(), "undefined: a")

	out.Reset()
	session.feed(ctx, ":nope")
	assert.Contains(t, out.String(), "unknown command :nope")

	_, quit := session.feed(ctx, ":quit")
	assert.True(t, quit)
}

func TestREPLSession_ParseErrorAndCancel(t *testing.T) {
	var out bytes.Buffer
	session := newREPLSession(newRuntime(directive.Config{}, nil), &out)
	ctx := context.Background()

	session.feed(ctx, "x = = 1")
	assert.NotEmpty(t, out.String())

	session.feed(ctx, "if True:")
	require.True(t, session.pending())
	session.cancel()
	assert.False(t, session.pending())

	out.Reset()
	prompt, _ := session.feed(ctx, "1 + 1")
	assert.Equal(t, replPrompt, prompt)
	assert.Equal(t, "2\n", out.String())
}

func TestOpenBrackets(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"x = 1", 0},
		{"f(1,", 1},
		{"d = {'a': [1,", 2},
		{"s = ')'", 0},
		{"s = \"(\" + '['", 0},
		{"x = (1 # )", 1},
		{`s = "\")"`, 0},
		{`s = """(`, 1},
		{"s = '''a\nb''' + (", 1},
		{"f(1)\n)", -1},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, openBrackets(tt.src))
		})
	}
}
