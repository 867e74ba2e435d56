package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iambrandonn/docrun/internal/fsutil"
)

// FileName is the configuration file looked up by Find.
const FileName = "docrun.yaml"

// Config represents the docrun.yaml configuration file
type Config struct {
	Version string `yaml:"version"`

	// SourceDir holds the Markdown documents, relative to the config file.
	SourceDir string `yaml:"source_dir"`
	// OutputDir receives the rendered documents.
	OutputDir string `yaml:"output_dir"`
	// StateDir holds the build manifest and event logs.
	StateDir string `yaml:"state_dir"`
	// Extensions selects which files under SourceDir are documents.
	Extensions []string `yaml:"extensions"`

	Directives Directives `yaml:"directives"`
	Build      Build      `yaml:"build"`

	LogLevel string `yaml:"log_level"`

	// SearchPath lists extra module directories for load(), relative to
	// SourceDir unless absolute.
	SearchPath []string `yaml:"search_path,omitempty"`

	// dir is the directory of the loaded file; relative paths resolve from it.
	dir string
}

// Directives holds defaults for {run} directives.
type Directives struct {
	SourceEncoding       string `yaml:"source_encoding"`
	FileInsertionEnabled bool   `yaml:"file_insertion_enabled"`
	DefaultFormatting    string `yaml:"default_formatting"`
	TabWidth             int    `yaml:"tab_width"`
}

// Build holds build host settings.
type Build struct {
	Jobs int `yaml:"jobs"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:    "1.0",
		SourceDir:  "docs",
		OutputDir:  "_build",
		StateDir:   ".docrun",
		Extensions: []string{".md"},
		Directives: Directives{
			SourceEncoding:       "utf-8",
			FileInsertionEnabled: true,
			DefaultFormatting:    "interpreter",
			TabWidth:             0,
		},
		Build: Build{
			Jobs: 4,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  version: \"1.0\"")
	}

	if c.SourceDir == "" {
		return fmt.Errorf("configuration error: missing required field 'source_dir'\n\nHint: Point it at the directory holding your documents:\n  source_dir: docs")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("configuration error: missing required field 'output_dir'\n\nHint: Choose where rendered documents go:\n  output_dir: _build")
	}

	if filepath.Clean(c.SourceDir) == filepath.Clean(c.OutputDir) {
		return fmt.Errorf("configuration error: 'output_dir' must differ from 'source_dir' (both are %q)\n\nHint: Rendered documents would overwrite their sources. Use for example:\n  output_dir: _build", c.SourceDir)
	}

	if len(c.Extensions) == 0 {
		return fmt.Errorf("configuration error: 'extensions' is empty\n\nHint: List the document extensions to render:\n  extensions: [\".md\"]")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("configuration error: invalid extension %q\n\nHint: Extensions start with a dot:\n  extensions: [\".md\"]", ext)
		}
	}

	switch c.Directives.DefaultFormatting {
	case "interpreter", "separate":
	default:
		return fmt.Errorf("configuration error: invalid 'directives.default_formatting' value: %q\n\nHint: Use one of:\n  directives:\n    default_formatting: interpreter   # or separate", c.Directives.DefaultFormatting)
	}

	if c.Directives.TabWidth < 0 {
		return fmt.Errorf("configuration error: invalid 'directives.tab_width' value: %d\n\nHint: Use 0 to keep tabs, or a positive width:\n  directives:\n    tab_width: 4", c.Directives.TabWidth)
	}

	if c.Directives.SourceEncoding == "" {
		return fmt.Errorf("configuration error: missing 'directives.source_encoding'\n\nHint: Name the encoding of included files:\n  directives:\n    source_encoding: utf-8")
	}

	if c.Build.Jobs < 1 {
		return fmt.Errorf("configuration error: invalid 'build.jobs' value: %d\n\nHint: Jobs is the number of documents rendered in parallel and must be at least 1:\n  build:\n    jobs: 4", c.Build.Jobs)
	}

	if _, _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("configuration error: %v\n\nHint: Use one of debug, info, warn, error:\n  log_level: info", err)
	}

	return nil
}

// LoadFromFile loads a configuration from a YAML file. Fields missing from the
// file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := GenerateDefault()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(abs)

	return cfg, nil
}

// SaveToFile writes the configuration to a YAML file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Find walks up from dir looking for FileName and returns its path.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for {
		candidate := filepath.Join(abs, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no %s found in %s or any parent directory", FileName, dir)
		}
		abs = parent
	}
}

// Dir returns the directory relative paths resolve from: the loaded file's
// directory, or the working directory for a generated config.
func (c *Config) Dir() string {
	if c.dir != "" {
		return c.dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// SetDir overrides the directory relative paths resolve from.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// Resolve makes p absolute against Dir.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir(), p)
}

// SourcePath returns the absolute source directory.
func (c *Config) SourcePath() string { return c.Resolve(c.SourceDir) }

// OutputPath returns the absolute output directory.
func (c *Config) OutputPath() string { return c.Resolve(c.OutputDir) }

// StatePath returns the absolute state directory.
func (c *Config) StatePath() string { return c.Resolve(c.StateDir) }

// ParseLogLevel maps a level name to a slog.Level and its canonical name.
func ParseLogLevel(input string) (slog.Level, string, error) {
	level := strings.ToLower(strings.TrimSpace(input))
	switch level {
	case "", "info":
		return slog.LevelInfo, "info", nil
	case "debug":
		return slog.LevelDebug, "debug", nil
	case "warn", "warning":
		return slog.LevelWarn, "warn", nil
	case "error", "err":
		return slog.LevelError, "error", nil
	default:
		return slog.LevelInfo, "", fmt.Errorf("unsupported log level %q", input)
	}
}
