package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opencoder",
	Short: "Autonomous improvement loop for a code repository",
	Long: `opencoder drives an external coding agent through repeated
plan / execute / evaluate cycles against a project directory, committing
each completed task and pushing when a cycle is judged complete.

Running 'opencoder' without a subcommand is equivalent to 'opencoder run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'run' command
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags. hint and verbose live here rather than on runCmd so the
	// default invocation (root delegating to run) can resolve them too.
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to opencoder config file (default: search up directory tree)")
	rootCmd.PersistentFlags().String("hint", "", "Free-form direction injected into every planning and execution prompt")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug-level console logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
