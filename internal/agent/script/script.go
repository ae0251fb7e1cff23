// Package script provides scripted responses for mock agents. Each agent
// invocation is a separate process, so the position within a script is kept
// in a cursor file on disk rather than in memory.
package script

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/opencodeco/opencoder/internal/fsutil"
)

// Step describes the outcome of one scripted agent invocation.
type Step struct {
	// Output is written to stdout (the agent's final answer).
	Output string `json:"output,omitempty"`
	// Stderr lines are written to stderr (interactive chatter).
	Stderr []string `json:"stderr,omitempty"`
	// ExitCode lets a step simulate a failed invocation.
	ExitCode int `json:"exit_code,omitempty"`
	// DelayMs delays the response to simulate a slow agent.
	DelayMs int `json:"delay_ms,omitempty"`
}

// Script is an ordered sequence of invocation outcomes.
type Script struct {
	Steps []Step `json:"steps"`
}

// Load reads a script from the provided path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script JSON: %w", err)
	}

	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps defined")
	}

	return &s, nil
}

// Next returns the step for the current invocation and advances the cursor
// file. Invocations past the end of the script replay the last step.
func (s *Script) Next(cursorPath string) (Step, error) {
	cursor := 0
	if data, err := os.ReadFile(cursorPath); err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr != nil {
			return Step{}, fmt.Errorf("corrupt cursor file %s: %w", cursorPath, convErr)
		}
		cursor = n
	}

	idx := cursor
	if idx >= len(s.Steps) {
		idx = len(s.Steps) - 1
	}

	if err := fsutil.AtomicWrite(cursorPath, []byte(strconv.Itoa(cursor+1)+"\n")); err != nil {
		return Step{}, fmt.Errorf("advance cursor: %w", err)
	}

	return s.Steps[idx], nil
}
