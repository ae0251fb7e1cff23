// Package state persists the orchestration loop's position so a killed
// process can resume without losing or duplicating work. The state file is
// a hint, not the truth: task counters are always recomputed from the
// on-disk plan at load time.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencodeco/opencoder/internal/fsutil"
	"github.com/opencodeco/opencoder/internal/plan"
)

// Phase is the loop's current stage within a cycle. Stringification happens
// only at the JSON boundary.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePlanning   Phase = "planning"
	PhaseExecuting  Phase = "executing"
	PhaseEvaluating Phase = "evaluating"
)

// IsValid returns true for a known phase value.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhasePlanning, PhaseExecuting, PhaseEvaluating:
		return true
	}
	return false
}

// ExecutionState is the persisted record of loop progress.
type ExecutionState struct {
	RunID            string    `json:"run_id"`
	Cycle            int       `json:"cycle"`
	Phase            Phase     `json:"phase"`
	CurrentTaskIndex int       `json:"current_task_index"`
	TotalTasks       int       `json:"total_tasks"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// New creates a fresh execution state at cycle 0, phase idle.
func New(runID string) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		RunID:     runID,
		Cycle:     0,
		Phase:     PhaseIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Store reads and writes the execution state file.
type Store struct {
	path string
}

// NewStore creates a store for the state file under workDir.
func NewStore(workDir string) *Store {
	return &Store{path: filepath.Join(workDir, "state.json")}
}

// Path returns the location of the state file.
func (s *Store) Path() string {
	return s.path
}

// Save writes the state atomically (write-then-replace), stamping UpdatedAt.
func (s *Store) Save(st *ExecutionState) error {
	st.UpdatedAt = time.Now().UTC()
	if err := fsutil.AtomicWriteJSON(s.path, st); err != nil {
		return fmt.Errorf("failed to save execution state: %w", err)
	}
	return nil
}

// Load reads the state file. A missing file means a fresh run and returns
// (nil, nil). A present but unreadable or invalid file is an error.
func (s *Store) Load() (*ExecutionState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution state: %w", err)
	}

	var st ExecutionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution state: %w", err)
	}

	if !st.Phase.IsValid() {
		return nil, fmt.Errorf("execution state has unknown phase %q", st.Phase)
	}
	if st.Cycle < 0 || st.CurrentTaskIndex < 0 || st.TotalTasks < 0 {
		return nil, fmt.Errorf("execution state has negative counters")
	}

	return &st, nil
}

// Reconcile recomputes the task counters from plan text. The persisted
// counters are never trusted: a crash that updated the plan but not the
// state file would otherwise re-run a completed task or skip one.
func Reconcile(st *ExecutionState, planText string) {
	tasks := plan.Parse(planText)
	st.TotalTasks = len(tasks)

	next := len(tasks)
	for i, t := range tasks {
		if !t.Completed {
			next = i
			break
		}
	}
	st.CurrentTaskIndex = next
}
