// mockagent is a stand-in for the real coding agent CLI. It speaks the same
// command line ("run --model M --title T <prompt>"), emits chatter on stderr
// and its final answer on stdout, and can be driven by a JSON script for
// deterministic smoke tests. Without a script it improvises: a checkbox plan
// for planning prompts, COMPLETE for evaluation prompts, "done" otherwise.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/opencodeco/opencoder/internal/agent/script"
)

func main() {
	scriptFlag := flag.String("script", "", "Path to response script file (JSON); also read from MOCKAGENT_SCRIPT")
	cursorFlag := flag.String("cursor", "", "Path to the script cursor file (default: <script>.cursor)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	inv, err := parseInvocation(flag.Args())
	if err != nil {
		logger.Error("bad invocation", "error", err)
		os.Exit(2)
	}

	logger.Info("mock agent invoked",
		"model", inv.model,
		"title", inv.title,
		"prompt_bytes", len(inv.prompt),
		"pid", os.Getpid())

	scriptPath := *scriptFlag
	if scriptPath == "" {
		scriptPath = os.Getenv("MOCKAGENT_SCRIPT")
	}

	if scriptPath == "" {
		fmt.Fprintln(os.Stderr, "improvising response for: "+inv.title)
		fmt.Print(improvise(inv))
		return
	}

	s, err := script.Load(scriptPath)
	if err != nil {
		logger.Error("failed to load script", "path", scriptPath, "error", err)
		os.Exit(2)
	}

	cursorPath := *cursorFlag
	if cursorPath == "" {
		cursorPath = scriptPath + ".cursor"
	}

	step, err := s.Next(cursorPath)
	if err != nil {
		logger.Error("failed to advance script", "error", err)
		os.Exit(2)
	}

	if step.DelayMs > 0 {
		time.Sleep(time.Duration(step.DelayMs) * time.Millisecond)
	}

	for _, line := range step.Stderr {
		fmt.Fprintln(os.Stderr, line)
	}

	if step.Output != "" {
		fmt.Println(step.Output)
	}

	os.Exit(step.ExitCode)
}

type invocation struct {
	model  string
	title  string
	prompt string
}

// parseInvocation accepts the agent CLI's calling convention:
// run --model <model> --title <title> <prompt>
func parseInvocation(args []string) (*invocation, error) {
	if len(args) == 0 || args[0] != "run" {
		return nil, fmt.Errorf("expected 'run' subcommand, got %v", args)
	}

	inv := &invocation{}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--model":
			if i+1 >= len(rest) {
				return nil, fmt.Errorf("--model requires a value")
			}
			i++
			inv.model = rest[i]
		case "--title":
			if i+1 >= len(rest) {
				return nil, fmt.Errorf("--title requires a value")
			}
			i++
			inv.title = rest[i]
		default:
			inv.prompt = rest[i]
		}
	}

	if inv.prompt == "" {
		return nil, fmt.Errorf("missing prompt argument")
	}
	return inv, nil
}

// improvise produces a plausible answer from the invocation title alone.
func improvise(inv *invocation) string {
	switch {
	case strings.Contains(inv.title, "planning"):
		return "```\n- [ ] add a README describing the project\n- [ ] improve test coverage of the main package\n```\n"
	case strings.Contains(inv.title, "evaluation"):
		return "COMPLETE\n"
	default:
		return "done\n"
	}
}
