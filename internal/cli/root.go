package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docrun",
	Short: "Render executable code samples in Markdown documents",
	Long: `docrun renders Markdown documents whose {run} blocks hold Starlark
snippets. Every block runs against an environment shared by the whole
document, and is replaced by an interactive-session transcript or by the
code followed by its output.

Running 'docrun' without a subcommand is equivalent to 'docrun build'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'build' command
		return buildCmd.RunE(cmd, args)
	},
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(statusCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to docrun.yaml config file (default: search up directory tree)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default: from config, else info)")

	// The root command builds, so it accepts the build flags too.
	addBuildFlags(rootCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
