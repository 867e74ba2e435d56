package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/docrun/internal/config"
	"github.com/iambrandonn/docrun/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a docrun.yaml and the project directories",
	Long: `Create a default docrun.yaml in dir (default: the current directory),
together with its source and state directories. An existing config is left
alone unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing docrun.yaml")
	initCmd.Flags().String("source-dir", "", "Directory holding the documents (default: docs)")
	initCmd.Flags().String("formatting", "", "Default directive formatting: interpreter or separate")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	configPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists\n\nHint: Use --force to overwrite it", configPath)
	}

	cfg := config.GenerateDefault()
	if sourceDir, _ := cmd.Flags().GetString("source-dir"); sourceDir != "" {
		cfg.SourceDir = sourceDir
	}
	if formatting, _ := cmd.Flags().GetString("formatting"); formatting != "" {
		cfg.Directives.DefaultFormatting = formatting
	}
	cfg.SetDir(dir)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.SaveToFile(configPath); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.SourcePath(), 0o755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}
	if err := workspace.Initialize(cfg.StatePath()); err != nil {
		return fmt.Errorf("failed to initialize state directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", configPath)
	fmt.Fprintf(out, "Put documents in %s and run 'docrun build'.\n", cfg.SourcePath())
	return nil
}
