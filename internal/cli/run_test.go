package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand_Stdin(t *testing.T) {
	_, configPath := newProject(t)

	out, err := execute(t, "x = 1\nprint(x)\n", "--config", configPath, "run")
	require.NoError(t, err)
	assert.Equal(t, ">>> x = 1\n>>> print(x)\n1\n", out)
}

func TestRunCommand_File(t *testing.T) {
	_, configPath := newProject(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("payload"), 0o600))
	snippet := filepath.Join(dir, "snippet.star")
	require.NoError(t, os.WriteFile(snippet, []byte("print(read_file('data.txt'))\n"), 0o600))

	out, err := execute(t, "", "--config", configPath, "run", "--formatting", "separate", snippet)
	require.NoError(t, err)
	assert.Equal(t, "print(read_file('data.txt'))\n\npayload\n", out)
}

func TestRunCommand_Failures(t *testing.T) {
	_, configPath := newProject(t)

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{"runtime fault", "fail('boom')\n", nil, "boom"},
		{"parse error", "print(\n", nil, "warning: Could not parse this code"},
		{"bad option", "x = 1\n", []string{"--formatting", "table"}, "warning: option :formatting:"},
		{"missing file", "", []string{filepath.Join(t.TempDir(), "nope.star")}, "warning: Include file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", configPath, "run"}, tt.args...)
			out, err := execute(t, tt.stdin, args...)
			require.ErrorIs(t, err, ErrSnippetFailed)
			assert.Contains(t, out, tt.want)
		})
	}
}
