// Package plan parses and mutates the markdown task list that drives each
// orchestration cycle. The grammar is deliberately narrow: checkbox items of
// the form "- [ ] text" / "- [x] text"; every other line is inert prose.
package plan

import (
	"errors"
	"regexp"
	"strings"

	"github.com/opencodeco/opencoder/internal/fsutil"
)

// Validation failures for plan text.
var (
	ErrEmptyPlan         = errors.New("plan is empty")
	ErrNoActionableTasks = errors.New("plan contains no actionable tasks")
	ErrAllTasksCompleted = errors.New("all plan tasks are already completed")
)

// Task is one actionable checkbox item within a plan.
type Task struct {
	Description string
	Completed   bool
	Line        int // 1-based line number in the source text
}

var checkboxRe = regexp.MustCompile(`^\s*- \[( |[xX])\] (.*\S.*)$`)

// Parse scans text for checkbox items and returns them in source order.
// Lines that do not match the checkbox grammar are skipped.
func Parse(text string) []Task {
	var tasks []Task

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := checkboxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		tasks = append(tasks, Task{
			Description: strings.TrimSpace(m[2]),
			Completed:   m[1] == "x" || m[1] == "X",
			Line:        i + 1,
		})
	}

	return tasks
}

// Validate checks whether text is a usable plan. It returns ErrEmptyPlan,
// ErrNoActionableTasks, or ErrAllTasksCompleted, or nil when the plan has at
// least one uncompleted task.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyPlan
	}

	tasks := Parse(text)
	if len(tasks) == 0 {
		return ErrNoActionableTasks
	}

	for _, t := range tasks {
		if !t.Completed {
			return nil
		}
	}

	return ErrAllTasksCompleted
}

// MarkComplete rewrites the checkbox at the given 1-based line to its
// completed form. The input is returned unchanged (not an error) when the
// line does not exist or carries no checkbox; every other line is preserved
// byte for byte.
func MarkComplete(text string, line int) string {
	if line < 1 {
		return text
	}

	lines := strings.Split(text, "\n")
	if line > len(lines) {
		return text
	}

	idx := line - 1
	m := checkboxRe.FindStringSubmatchIndex(lines[idx])
	if m == nil {
		return text
	}

	// Submatch 1 is the single checkbox state character.
	start, end := m[2], m[3]
	lines[idx] = lines[idx][:start] + "x" + lines[idx][end:]

	return strings.Join(lines, "\n")
}

// CountTotal returns the number of checkbox items in text.
func CountTotal(text string) int {
	return len(Parse(text))
}

// CountCompleted returns the number of completed checkbox items in text.
func CountCompleted(text string) int {
	count := 0
	for _, t := range Parse(text) {
		if t.Completed {
			count++
		}
	}
	return count
}

// ExtractFromResponse isolates plan text from a free-form agent answer. If
// the raw text contains a fenced code block, the trimmed inner content of the
// first block is returned; otherwise the trimmed raw text is.
func ExtractFromResponse(raw string) string {
	open := strings.Index(raw, "```")
	if open == -1 {
		return strings.TrimSpace(raw)
	}

	// Skip the fence line itself, including any language tag.
	rest := raw[open+3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	} else {
		// Opening fence with no newline after it; nothing inside.
		return strings.TrimSpace(raw)
	}

	if close := strings.Index(rest, "```"); close != -1 {
		rest = rest[:close]
	}

	return strings.TrimSpace(rest)
}

// LoadFile reads a plan file, rejecting files larger than maxBytes outright.
func LoadFile(path string, maxBytes int64) (string, error) {
	data, err := fsutil.ReadFileBounded(path, maxBytes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveFile writes plan text atomically.
func SaveFile(path, text string) error {
	return fsutil.AtomicWrite(path, []byte(text))
}
