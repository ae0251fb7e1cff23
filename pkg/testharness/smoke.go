package testharness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/opencodeco/opencoder/internal/config"
	"github.com/opencodeco/opencoder/internal/plan"
	"github.com/opencodeco/opencoder/internal/state"
	"github.com/opencodeco/opencoder/internal/workspace"
)

// Scenario is a scripted sequence of mock-agent responses.
type Scenario struct {
	Name  string
	Steps []map[string]any
}

// ScenarioSingleCycle drives one full cycle: a two-task plan, two successful
// executions, and a COMPLETE verdict.
var ScenarioSingleCycle = Scenario{
	Name: "single-cycle",
	Steps: []map[string]any{
		{
			"output": "```\n- [ ] add a greeting file\n- [ ] fix the greeting punctuation\n```",
			"stderr": []string{"surveying repository", "drafting plan"},
		},
		{"output": "done", "stderr": []string{"writing greeting file"}},
		{"output": "done", "stderr": []string{"fixing punctuation"}},
		{"output": "COMPLETE\nReason: both tasks are trivially verifiable"},
	},
}

// SmokeOptions configures RunSmoke.
type SmokeOptions struct {
	Scenario        Scenario
	OpencoderBinary string
	MockAgentBinary string
	// Timeout bounds the whole scenario. Defaults to 60s.
	Timeout time.Duration
}

// SmokeResult captures the outcome of a smoke scenario.
type SmokeResult struct {
	ProjectDir  string
	Stdout      string
	Stderr      string
	State       *state.ExecutionState
	PlanText    string
	CommitCount int
	// TrackedWorkFiles lists files under the orchestrator's work dir that
	// ended up tracked by git. Empty when the work dir is ignored correctly.
	TrackedWorkFiles []string
}

// RunSmoke launches opencoder against a fresh git repository with the mock
// agent standing in for the real CLI, waits for the scenario's cycle to
// finish, then stops the orchestrator with SIGTERM.
func RunSmoke(ctx context.Context, opts SmokeOptions) (*SmokeResult, error) {
	if opts.OpencoderBinary == "" {
		return nil, fmt.Errorf("opencoder binary path is required")
	}
	if opts.MockAgentBinary == "" {
		return nil, fmt.Errorf("mockagent binary path is required")
	}
	if len(opts.Scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario has no steps")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	projectDir, err := os.MkdirTemp("", "opencoder-smoke-")
	if err != nil {
		return nil, fmt.Errorf("failed to create project dir: %w", err)
	}

	if err := initGitRepo(ctx, projectDir); err != nil {
		return nil, err
	}

	scriptPath := filepath.Join(projectDir, "agent-script.json")
	scriptData, err := json.Marshal(map[string]any{"steps": opts.Scenario.Steps})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario: %w", err)
	}
	if err := os.WriteFile(scriptPath, scriptData, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scenario script: %w", err)
	}

	cfg := config.GenerateDefault()
	cfg.ProjectDir = "."
	cfg.AgentCommand = opts.MockAgentBinary
	cfg.BackoffBaseSeconds = 0
	cfg.TaskPauseSeconds = 0

	cfgPath := filepath.Join(projectDir, "opencoder.json")
	if err := cfg.SaveToFile(cfgPath); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.OpencoderBinary, "run", "-c", cfgPath)
	cmd.Dir = projectDir
	cmd.Env = append(os.Environ(), "MOCKAGENT_SCRIPT="+scriptPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start opencoder: %w", err)
	}

	store := state.NewStore(workspace.Dir(projectDir))
	if err := waitForCycleAdvance(runCtx, store); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w\nstdout:\n%s\nstderr:\n%s", err, stdout.String(), stderr.String())
	}

	// Graceful stop; the orchestrator persists its position and exits 0.
	_ = cmd.Process.Signal(syscall.SIGTERM)
	waitErr := cmd.Wait()

	result := &SmokeResult{
		ProjectDir: projectDir,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}

	if st, err := store.Load(); err == nil {
		result.State = st
	}
	if text, err := plan.LoadFile(workspace.PlanPath(projectDir), cfg.MaxFileSizeBytes); err == nil {
		result.PlanText = text
	}
	result.CommitCount = countCommits(ctx, projectDir)
	result.TrackedWorkFiles = trackedFiles(ctx, projectDir, ".opencoder")

	if waitErr != nil {
		return result, fmt.Errorf("opencoder exited with error: %w\nstderr:\n%s", waitErr, result.Stderr)
	}
	return result, nil
}

// waitForCycleAdvance polls the persisted state until the run moves past
// cycle 0, meaning the scenario's cycle completed end to end.
func waitForCycleAdvance(ctx context.Context, store *state.Store) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for the cycle to finish")
		case <-ticker.C:
			st, err := store.Load()
			if err != nil || st == nil {
				continue
			}
			if st.Cycle >= 1 {
				return nil
			}
		}
	}
}

func initGitRepo(ctx context.Context, dir string) error {
	steps := [][]string{
		{"init"},
		{"config", "user.email", "smoke@example.com"},
		{"config", "user.name", "Smoke Test"},
		{"commit", "--allow-empty", "-m", "initial commit"},
	}
	for _, args := range steps {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("git %v failed: %w\n%s", args, err, string(out))
		}
	}
	return nil
}

func trackedFiles(ctx context.Context, dir, subpath string) []string {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", subpath)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files
}

func countCommits(ctx context.Context, dir string) int {
	cmd := exec.CommandContext(ctx, "git", "rev-list", "--count", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	var n int
	fmt.Sscanf(string(out), "%d", &n)
	return n
}
