package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefault(t *testing.T) {
	cfg := GenerateDefault()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "docs", cfg.SourceDir)
	assert.Equal(t, "_build", cfg.OutputDir)
	assert.Equal(t, ".docrun", cfg.StateDir)
	assert.Equal(t, []string{".md"}, cfg.Extensions)

	assert.Equal(t, "utf-8", cfg.Directives.SourceEncoding)
	assert.True(t, cfg.Directives.FileInsertionEnabled)
	assert.Equal(t, "interpreter", cfg.Directives.DefaultFormatting)
	assert.Equal(t, 0, cfg.Directives.TabWidth)

	assert.Equal(t, 4, cfg.Build.Jobs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.SearchPath)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GenerateDefault()
	err := cfg.Validate()
	assert.NoError(t, err, "Default config should be valid")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"missing source dir", func(c *Config) { c.SourceDir = "" }, "source_dir"},
		{"missing output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"output equals source", func(c *Config) { c.OutputDir = "docs/" }, "must differ"},
		{"no extensions", func(c *Config) { c.Extensions = nil }, "extensions"},
		{"extension without dot", func(c *Config) { c.Extensions = []string{"md"} }, "invalid extension"},
		{"bad formatting", func(c *Config) { c.Directives.DefaultFormatting = "table" }, "default_formatting"},
		{"negative tab width", func(c *Config) { c.Directives.TabWidth = -1 }, "tab_width"},
		{"missing encoding", func(c *Config) { c.Directives.SourceEncoding = "" }, "source_encoding"},
		{"zero jobs", func(c *Config) { c.Build.Jobs = 0 }, "build.jobs"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GenerateDefault()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration error")
			assert.Contains(t, err.Error(), "Hint:")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `version: "1.0"
source_dir: book
directives:
  default_formatting: separate
  tab_width: 4
search_path:
  - lib
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "book", cfg.SourceDir)
	assert.Equal(t, "separate", cfg.Directives.DefaultFormatting)
	assert.Equal(t, 4, cfg.Directives.TabWidth)
	assert.Equal(t, "utf-8", cfg.Directives.SourceEncoding)
	assert.Equal(t, "_build", cfg.OutputDir)
	assert.Equal(t, []string{"lib"}, cfg.SearchPath)
	assert.Equal(t, filepath.Join(dir, "book"), cfg.SourcePath())
	assert.Equal(t, filepath.Join(dir, "_build"), cfg.OutputPath())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, nil, 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, GenerateDefault().Version, cfg.Version)
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/docrun.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()

	for name, content := range map[string]string{
		"syntax":        "version: [unclosed\n",
		"unknown field": "version: \"1.0\"\nconcurrency: 3\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))

			cfg, err := LoadFromFile(path)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := GenerateDefault()
	cfg.SearchPath = []string{"shared"}
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, FileName)

	err := cfg.SaveToFile(configPath)
	require.NoError(t, err)

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, cfg.Version, loaded.Version)
	assert.Equal(t, cfg.Directives, loaded.Directives)
	assert.Equal(t, cfg.Build, loaded.Build)
	assert.Equal(t, []string{"shared"}, loaded.SearchPath)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "docs", "guide")
	require.NoError(t, os.MkdirAll(nested, 0700))
	require.NoError(t, GenerateDefault().SaveToFile(filepath.Join(root, FileName)))

	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, FileName), found)

	_, err = Find(t.TempDir())
	if err == nil {
		t.Skip("a docrun.yaml exists above the temp directory")
	}
	assert.Contains(t, err.Error(), FileName)
}

func TestResolve(t *testing.T) {
	cfg := GenerateDefault()
	cfg.SetDir("/project")

	assert.Equal(t, filepath.Join("/project", "docs"), cfg.SourcePath())
	assert.Equal(t, filepath.Join("/project", ".docrun"), cfg.StatePath())
	assert.Equal(t, "/abs/out", cfg.Resolve("/abs/out/"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		level slog.Level
		name  string
	}{
		{"", slog.LevelInfo, "info"},
		{"INFO", slog.LevelInfo, "info"},
		{"debug", slog.LevelDebug, "debug"},
		{"warning", slog.LevelWarn, "warn"},
		{" err ", slog.LevelError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, name, err := ParseLogLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.name, name)
		})
	}

	_, _, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
