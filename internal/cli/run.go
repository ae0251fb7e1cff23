package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencodeco/opencoder/internal/agent"
	"github.com/opencodeco/opencoder/internal/config"
	"github.com/opencodeco/opencoder/internal/gitops"
	"github.com/opencodeco/opencoder/internal/logging"
	"github.com/opencodeco/opencoder/internal/loop"
	"github.com/opencodeco/opencoder/internal/state"
	"github.com/opencodeco/opencoder/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start or resume the orchestration loop",
	Long: `Start the orchestration loop against the configured project directory.
If a previous run left persisted state behind, the loop resumes from that
exact position instead of starting over.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	hint, err := cmd.Flags().GetString("hint")
	if err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	logger := newConsoleLogger(verbose)

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return err
	}

	logger.Info("loaded configuration", "path", cfgPath)

	if hint != "" {
		cfg.UserHint = hint
	}
	if verbose {
		cfg.Verbose = true
	}

	// Resolve the project dir relative to the config file before validation
	// so a config found up the tree still points at the right project.
	cfg.ProjectDir = resolveProjectDir(cfg, cfgPath)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("project directory", "path", cfg.ProjectDir)

	if err := workspace.Initialize(cfg.ProjectDir); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	sink, err := logging.NewSink(workspace.LogsDir(cfg.ProjectDir))
	if err != nil {
		return fmt.Errorf("failed to open log sink: %w", err)
	}
	defer sink.Close()

	runner := agent.NewRunner(
		cfg.AgentCommand,
		cfg.MaxRetries,
		time.Duration(cfg.BackoffBaseSeconds)*time.Second,
		logger,
		sink,
	)

	git := gitops.NewClient(cfg.ProjectDir)
	store := state.NewStore(workspace.Dir(cfg.ProjectDir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := loop.New(cfg, runner, git, store, sink, logger)

	logger.Info("starting orchestration loop", "agent", cfg.AgentCommand)
	if err := orchestrator.Run(ctx); err != nil {
		return err
	}

	if orchestrator.Degraded() {
		logger.Warn("run finished in degraded mode; the next run may not resume correctly")
	}
	logger.Info("orchestration loop stopped")
	return nil
}

func newConsoleLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadOrCreateConfig resolves the configuration: explicit path, then search
// up the directory tree, then generate a default in the current directory.
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	// If explicit path provided, use it
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	foundPath, err := config.FindInTree()
	if err != nil {
		return nil, "", err
	}

	if foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	// No config found, create default in current directory
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	defaultPath := filepath.Join(cwd, "opencoder.json")
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}

	logger.Info("created default config", "path", defaultPath)
	return cfg, defaultPath, nil
}

// resolveProjectDir anchors a relative project_dir at the config file's
// directory.
func resolveProjectDir(cfg *config.Config, cfgPath string) string {
	if filepath.IsAbs(cfg.ProjectDir) {
		return cfg.ProjectDir
	}
	return filepath.Join(filepath.Dir(cfgPath), cfg.ProjectDir)
}
