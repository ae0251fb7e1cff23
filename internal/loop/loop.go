// Package loop implements the orchestration state machine that drives
// repeated Plan→Execute→Evaluate→Commit cycles. The loop is single-threaded:
// exactly one phase is active at a time, and every phase outcome is persisted
// before the next phase starts, so a killed process resumes exactly where it
// stopped.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opencodeco/opencoder/internal/config"
	"github.com/opencodeco/opencoder/internal/evaluate"
	"github.com/opencodeco/opencoder/internal/fsutil"
	"github.com/opencodeco/opencoder/internal/gitops"
	"github.com/opencodeco/opencoder/internal/logging"
	"github.com/opencodeco/opencoder/internal/plan"
	"github.com/opencodeco/opencoder/internal/state"
	"github.com/opencodeco/opencoder/internal/workspace"
)

// maxTaskDescriptionLen bounds task text before it reaches prompts and
// commit messages.
const maxTaskDescriptionLen = 500

// AgentRunner invokes the external agent. *agent.Runner satisfies this.
type AgentRunner interface {
	Run(ctx context.Context, model, title, prompt string) (string, error)
	Cancel()
}

// GitClient is the git boundary the loop needs. *gitops.Client satisfies this.
type GitClient interface {
	HasChanges(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Loop owns the leaf components and sequences every phase transition.
type Loop struct {
	cfg    *config.Config
	runner AgentRunner
	git    GitClient
	store  *state.Store
	sink   *logging.Sink
	logger *slog.Logger

	planPath string

	st       *state.ExecutionState
	planText string

	// replans counts NeedsWork-driven plan regenerations in the current
	// cycle. Not persisted: a restart resets the budget, which only makes
	// the loop more patient, never stuck.
	replans int

	// degraded is set when a state or plan write fails; the loop keeps
	// going in memory but a restart will not resume correctly.
	degraded bool

	loggedCycle int
}

// New creates an orchestration loop over an already-validated config.
func New(cfg *config.Config, runner AgentRunner, git GitClient, store *state.Store, sink *logging.Sink, logger *slog.Logger) *Loop {
	return &Loop{
		cfg:         cfg,
		runner:      runner,
		git:         git,
		store:       store,
		sink:        sink,
		logger:      logger,
		planPath:    workspace.PlanPath(cfg.ProjectDir),
		loggedCycle: -1,
	}
}

// Run drives cycles until ctx is cancelled. It returns an error only for an
// unrecoverable state-store failure at startup; everything else degrades or
// retries per-cycle.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.restore(); err != nil {
		return err
	}

	if removed, err := l.sink.CleanupOlderThan(l.cfg.LogRetentionDays); err != nil {
		l.sink.Warnf("cycle log cleanup failed: %v", err)
	} else if removed > 0 {
		l.sink.Infof("removed %d cycle log(s) past the %d-day retention", removed, l.cfg.LogRetentionDays)
	}

	for {
		// Yield point: before each phase.
		if ctx.Err() != nil {
			return l.shutdown()
		}

		l.ensureCycleLog()

		switch l.st.Phase {
		case state.PhaseIdle:
			l.st.Phase = state.PhasePlanning
			l.persistState()
		case state.PhasePlanning:
			l.runPlanning(ctx)
		case state.PhaseExecuting:
			l.runExecuting(ctx)
		case state.PhaseEvaluating:
			l.runEvaluating(ctx)
		}
	}
}

// restore loads persisted state and reconciles it against the on-disk plan.
// The plan file, not the stale record, is the source of truth for task
// counters.
func (l *Loop) restore() error {
	st, err := l.store.Load()
	if err != nil {
		return fmt.Errorf("cannot start: %w", err)
	}

	if st == nil {
		l.st = state.New(NewRunID())
		l.logger.Info("starting fresh run", "run_id", l.st.RunID)
		l.sink.Infof("fresh run %s started", l.st.RunID)
		l.persistState()
		return nil
	}

	l.st = st
	l.logger.Info("resuming run",
		"run_id", st.RunID,
		"cycle", st.Cycle,
		"phase", st.Phase)

	if _, err := os.Stat(l.planPath); err == nil {
		text, err := plan.LoadFile(l.planPath, l.cfg.MaxFileSizeBytes)
		if err != nil {
			l.sink.Warnf("resume: plan file unusable, replanning: %v", err)
			l.st.Phase = state.PhasePlanning
		} else {
			l.planText = text
			state.Reconcile(l.st, text)
		}
	} else if l.st.Phase == state.PhaseExecuting || l.st.Phase == state.PhaseEvaluating {
		// Mid-cycle state without a plan file cannot be resumed in place.
		l.sink.Warnf("resume: no plan file found, replanning cycle %d", l.st.Cycle)
		l.st.Phase = state.PhasePlanning
	}

	l.sink.Infof("resumed run %s at cycle %d, phase %s, task %d/%d",
		st.RunID, st.Cycle, st.Phase, st.CurrentTaskIndex, st.TotalTasks)
	l.persistState()
	return nil
}

// runPlanning asks the planning model for a task list and validates it.
// An invalid plan retries the phase itself with the standard backoff; on
// exhaustion the cycle is abandoned.
func (l *Loop) runPlanning(ctx context.Context) {
	cycle := l.st.Cycle
	l.logger.Info("phase: planning", "cycle", cycle)

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		// Yield point: before each phase-level retry sleep.
		if !l.sleepBackoff(ctx, attempt) {
			return
		}

		raw, err := l.runner.Run(ctx, l.cfg.PlanningModel,
			fmt.Sprintf("cycle %d planning", cycle),
			PlanningPrompt(cycle, l.cfg.UserHint))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.sink.Errorf("cycle %d: planning invocation failed terminally: %v", cycle, err)
			l.abortCycle("planning invocation failed")
			return
		}

		text := plan.ExtractFromResponse(raw)
		if err := plan.Validate(text); err != nil {
			l.sink.Warnf("cycle %d: invalid plan on attempt %d/%d: %v", cycle, attempt, l.cfg.MaxRetries, err)
			continue
		}

		l.planText = text
		if err := plan.SaveFile(l.planPath, text); err != nil {
			l.markDegraded("plan write failed: %v", err)
		}

		state.Reconcile(l.st, text)
		l.st.Phase = state.PhaseExecuting
		l.persistState()

		l.logger.Info("plan accepted", "cycle", cycle, "tasks", l.st.TotalTasks)
		l.sink.Infof("cycle %d: plan accepted with %d task(s)", cycle, l.st.TotalTasks)
		return
	}

	l.sink.Errorf("cycle %d: no valid plan after %d attempts, abandoning cycle", cycle, l.cfg.MaxRetries)
	l.abortCycle("no valid plan")
}

// runExecuting attempts every uncompleted task in order. A task's terminal
// failure is logged and the loop moves on; one bad task never kills a cycle.
func (l *Loop) runExecuting(ctx context.Context) {
	cycle := l.st.Cycle
	l.logger.Info("phase: executing", "cycle", cycle, "tasks", l.st.TotalTasks)

	tasks := plan.Parse(l.planText)

	for i, task := range tasks {
		// Yield point: before each task.
		if ctx.Err() != nil {
			return
		}
		if task.Completed {
			continue
		}

		desc, err := fsutil.SanitizeText(task.Description, maxTaskDescriptionLen)
		if err != nil {
			l.sink.Errorf("cycle %d: task %d has unusable description, skipping: %v", cycle, i+1, err)
			continue
		}

		l.logger.Info("executing task", "cycle", cycle, "task", i+1, "description", desc)
		l.sink.Infof("cycle %d: executing task %d/%d: %s", cycle, i+1, len(tasks), desc)

		_, err = l.runner.Run(ctx, l.cfg.ExecutionModel,
			fmt.Sprintf("cycle %d task %d", cycle, i+1),
			ExecutionPrompt(desc, l.cfg.UserHint))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.sink.Errorf("cycle %d: task %d failed terminally, continuing: %v", cycle, i+1, err)
			l.pause(ctx)
			continue
		}

		l.planText = plan.MarkComplete(l.planText, task.Line)
		if err := plan.SaveFile(l.planPath, l.planText); err != nil {
			l.markDegraded("plan write failed: %v", err)
		}

		state.Reconcile(l.st, l.planText)
		l.persistState()

		l.commitIfDirty(ctx, desc)

		l.sink.Infof("cycle %d: task %d/%d completed", cycle, i+1, len(tasks))
		l.pause(ctx)
	}

	if ctx.Err() != nil {
		return
	}

	l.st.Phase = state.PhaseEvaluating
	l.persistState()
}

// runEvaluating classifies the evaluation response and decides between
// advancing to the next cycle and replanning the current one.
func (l *Loop) runEvaluating(ctx context.Context) {
	cycle := l.st.Cycle
	l.logger.Info("phase: evaluating", "cycle", cycle)

	raw, err := l.runner.Run(ctx, l.cfg.PlanningModel,
		fmt.Sprintf("cycle %d evaluation", cycle),
		EvaluationPrompt(cycle, l.planText))
	if ctx.Err() != nil {
		return
	}

	verdict := evaluate.VerdictNeedsWork
	reason := ""
	if err != nil {
		// An unanswerable evaluation is treated like an ambiguous one.
		l.sink.Warnf("cycle %d: evaluation invocation failed, assuming NEEDS_WORK: %v", cycle, err)
	} else {
		verdict = evaluate.Parse(raw)
		reason = evaluate.ExtractReason(raw)
	}

	if reason != "" {
		l.sink.Infof("cycle %d: verdict %s (%s)", cycle, verdict, reason)
	} else {
		l.sink.Infof("cycle %d: verdict %s", cycle, verdict)
	}
	l.logger.Info("evaluation verdict", "cycle", cycle, "verdict", verdict.String(), "reason", reason)

	if verdict == evaluate.VerdictComplete {
		if err := l.git.Push(ctx); err != nil {
			l.sink.Warnf("cycle %d: push failed: %v", cycle, err)
		}
		l.advanceCycle()
		return
	}

	l.replans++
	if l.replans > l.cfg.MaxRetries {
		l.sink.Warnf("cycle %d: hit %d plan regenerations, force-advancing to next cycle", cycle, l.cfg.MaxRetries)
		l.advanceCycle()
		return
	}

	l.sink.Infof("cycle %d: replanning (%d/%d)", cycle, l.replans, l.cfg.MaxRetries)
	l.st.Phase = state.PhasePlanning
	l.persistState()
}

// commitIfDirty commits the working tree after a completed task.
func (l *Loop) commitIfDirty(ctx context.Context, description string) {
	dirty, err := l.git.HasChanges(ctx)
	if err != nil {
		l.sink.Warnf("git status failed: %v", err)
		return
	}
	if !dirty {
		return
	}

	message := gitops.CommitMessage(description)
	if err := l.git.Commit(ctx, message); err != nil {
		l.sink.Warnf("commit failed: %v", err)
		return
	}
	l.sink.Infof("committed: %s", message)
}

// advanceCycle resets to Planning at the next cycle number.
func (l *Loop) advanceCycle() {
	l.st.Cycle++
	l.st.Phase = state.PhasePlanning
	l.st.CurrentTaskIndex = 0
	l.st.TotalTasks = 0
	l.planText = ""
	l.replans = 0
	l.persistState()
}

// abortCycle abandons the current cycle after a fatal phase failure. The
// process keeps running and attempts the next cycle.
func (l *Loop) abortCycle(reason string) {
	l.sink.Errorf("cycle %d abandoned: %s", l.st.Cycle, reason)
	l.advanceCycle()
}

// sleepBackoff sleeps the exponential backoff before phase attempt k (k>1);
// attempt 1 never waits. Returns false if ctx was cancelled during the wait.
func (l *Loop) sleepBackoff(ctx context.Context, attempt int) bool {
	if attempt <= 1 {
		return ctx.Err() == nil
	}

	delay := time.Duration(l.cfg.BackoffBaseSeconds) * time.Second * time.Duration(1<<(attempt-2))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// pause waits the configured gap between tasks, interruptible by ctx.
func (l *Loop) pause(ctx context.Context) {
	if l.cfg.TaskPauseSeconds <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(l.cfg.TaskPauseSeconds) * time.Second):
	}
}

// persistState saves the current state atomically. A write failure flags
// degraded mode but never stops the loop.
func (l *Loop) persistState() {
	if err := l.store.Save(l.st); err != nil {
		l.markDegraded("state write failed: %v", err)
	}
}

func (l *Loop) markDegraded(format string, args ...any) {
	l.sink.Warnf(format, args...)
	if !l.degraded {
		l.degraded = true
		l.sink.Warnf("running in degraded mode: progress is no longer resumable after a crash")
		l.logger.Warn("running in degraded mode", "reason", fmt.Sprintf(format, args...))
	}
}

// Degraded reports whether a persistence failure has made this run
// non-resumable.
func (l *Loop) Degraded() bool {
	return l.degraded
}

func (l *Loop) ensureCycleLog() {
	if l.st.Cycle == l.loggedCycle {
		return
	}
	if err := l.sink.BeginCycle(l.st.Cycle); err != nil {
		l.sink.Warnf("failed to open cycle log: %v", err)
		return
	}
	l.loggedCycle = l.st.Cycle
}

// shutdown forwards termination to any in-flight child, persists the current
// position, and exits cleanly so the next run resumes from this exact point.
func (l *Loop) shutdown() error {
	l.logger.Info("shutdown requested, persisting state", "cycle", l.st.Cycle, "phase", l.st.Phase)
	l.sink.Infof("shutdown: stopping at cycle %d, phase %s", l.st.Cycle, l.st.Phase)

	l.runner.Cancel()
	l.persistState()
	l.sink.Flush()
	return nil
}
