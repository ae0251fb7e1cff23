package loop

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// PlanningPrompt asks the planning model for the next batch of work as a
// markdown checkbox list.
func PlanningPrompt(cycle int, hint string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are planning improvement cycle %d for the repository in the current directory.\n\n", cycle)
	b.WriteString("Survey the codebase and produce a short, concrete plan of the most valuable work to do next. ")
	b.WriteString("Respond with a markdown checkbox list, one task per line, in the form:\n\n")
	b.WriteString("```\n- [ ] first task\n- [ ] second task\n```\n\n")
	b.WriteString("Each task must be independently executable and describe a single change. ")
	b.WriteString("Do not include tasks that are already done. Keep the list between 3 and 8 tasks.\n")

	if hint != "" {
		fmt.Fprintf(&b, "\nDirection from the user: %s\n", hint)
	}

	return b.String()
}

// ExecutionPrompt asks the execution model to carry out one task.
func ExecutionPrompt(task, hint string) string {
	var b strings.Builder

	b.WriteString("Carry out the following task in the repository in the current directory:\n\n")
	fmt.Fprintf(&b, "%s\n\n", task)
	b.WriteString("Make the change completely, including any tests the change needs. ")
	b.WriteString("Do not commit; the orchestrator commits for you. ")
	b.WriteString("Stay within the scope of this one task.\n")

	if hint != "" {
		fmt.Fprintf(&b, "\nDirection from the user: %s\n", hint)
	}

	return b.String()
}

// EvaluationPrompt asks the planning model to judge whether the cycle's plan
// has been satisfied.
func EvaluationPrompt(cycle int, planText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Improvement cycle %d just finished executing this plan:\n\n", cycle)
	fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(planText, "\n"))
	b.WriteString("Inspect the repository in the current directory and judge whether the plan's intent is satisfied. ")
	b.WriteString("Answer with exactly one of the words COMPLETE or NEEDS_WORK on its own line. ")
	b.WriteString("If you answer NEEDS_WORK, add a line of the form `Reason: <one sentence>` explaining what is missing.\n")

	return b.String()
}
