package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencodeco/opencoder/internal/config"
	"github.com/opencodeco/opencoder/internal/plan"
	"github.com/opencodeco/opencoder/internal/state"
	"github.com/opencodeco/opencoder/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted position of the current run",
	Long: `Show the persisted run position: run ID, cycle, phase, and task
progress from the on-disk plan. Read-only; never creates a config.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	if configPath == "" {
		configPath, err = config.FindInTree()
		if err != nil {
			return err
		}
		if configPath == "" {
			return fmt.Errorf("no opencoder config found in this directory or any parent")
		}
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	cfg.ProjectDir = resolveProjectDir(cfg, configPath)

	st, err := state.NewStore(workspace.Dir(cfg.ProjectDir)).Load()
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprintln(out, "No run state found; nothing has run yet.")
		return nil
	}

	fmt.Fprintf(out, "Run:     %s\n", st.RunID)
	fmt.Fprintf(out, "Cycle:   %d\n", st.Cycle)
	fmt.Fprintf(out, "Phase:   %s\n", st.Phase)
	fmt.Fprintf(out, "Started: %s\n", st.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

	planPath := workspace.PlanPath(cfg.ProjectDir)
	if _, err := os.Stat(planPath); err != nil {
		fmt.Fprintln(out, "Plan:    none")
		return nil
	}

	text, err := plan.LoadFile(planPath, cfg.MaxFileSizeBytes)
	if err != nil {
		fmt.Fprintf(out, "Plan:    unreadable (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Plan:    %d/%d tasks completed\n", plan.CountCompleted(text), plan.CountTotal(text))
	return nil
}
