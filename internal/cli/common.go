package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/config"
	"github.com/iambrandonn/docrun/internal/directive"
	"github.com/iambrandonn/docrun/internal/environment"
	"github.com/iambrandonn/docrun/internal/evaluator"
	"github.com/iambrandonn/docrun/internal/executor"
	"github.com/iambrandonn/docrun/internal/lifecycle"
	"github.com/iambrandonn/docrun/internal/segment"
)

// errNoConfig is returned by loadConfig when no docrun.yaml exists.
var errNoConfig = errors.New("no docrun.yaml found")

// loadConfig loads the file named by --config, or the nearest docrun.yaml
// above the working directory, and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}

	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current directory: %w", err)
		}
		found, err := config.Find(cwd)
		if err != nil {
			return nil, "", fmt.Errorf("%w in %s or any parent directory\n\nHint: Create one with:\n  docrun init", errNoConfig, cwd)
		}
		configPath = found
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// loadConfigOrDefault is loadConfig, falling back to the defaults rooted at
// the working directory when there is no config file.
func loadConfigOrDefault(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, err := loadConfig(cmd)
	if errors.Is(err, errNoConfig) {
		return config.GenerateDefault(), nil
	}
	return cfg, err
}

// newLogger writes text logs to w. The --log-level flag wins over the
// config's log_level.
func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	name, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	if name == "" && cfg != nil {
		name = cfg.LogLevel
	}

	level, _, err := config.ParseLogLevel(name)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// runtime is the snippet engine shared by a command's directives.
type runtime struct {
	store      *environment.Store
	segmenter  segment.Segmenter
	exec       *executor.Executor
	controller *directive.Controller
	lifecycle  *lifecycle.Manager
}

func newRuntime(dcfg directive.Config, logger *slog.Logger) *runtime {
	store := environment.NewStore()
	segmenter := segment.NewStarlark()
	exec := executor.New(evaluator.NewStarlark(evaluator.WithLogger(logger)), nil, logger)

	return &runtime{
		store:      store,
		segmenter:  segmenter,
		exec:       exec,
		controller: directive.NewController(dcfg, store, segmenter, exec, logger),
		lifecycle:  lifecycle.NewManager(store, logger),
	}
}
