// Package gitops wraps the two git primitives the orchestration loop needs:
// detecting a dirty working tree and committing/pushing it. Everything else
// about git is out of scope.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client runs git subprocesses against a single project directory.
type Client struct {
	dir string
}

// NewClient creates a git client for the given project directory.
func NewClient(dir string) *Client {
	return &Client{dir: dir}
}

// HasChanges reports whether the working tree has uncommitted changes,
// including untracked files.
func (c *Client) HasChanges(ctx context.Context) (bool, error) {
	out, err := c.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit stages everything and commits with the given message.
func (c *Client) Commit(ctx context.Context, message string) error {
	if _, err := c.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	if _, err := c.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Push pushes the current branch to its upstream.
func (c *Client) Push(ctx context.Context) error {
	if _, err := c.git(ctx, "push"); err != nil {
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%w: %s", err, detail)
		}
		return "", err
	}

	return stdout.String(), nil
}

// commitTypes holds the keyword categories in priority order. The first
// category with any keyword present in the description wins; feat is the
// default. The keyword lists are a fixed convention, not a classifier to
// be tuned.
var commitTypes = []struct {
	prefix   string
	keywords []string
}{
	{prefix: "fix", keywords: []string{"fix", "bug", "resolve", "issue"}},
	{prefix: "test", keywords: []string{"test", "spec", "coverage"}},
	{prefix: "docs", keywords: []string{"docs", "documentation", "readme", "comment"}},
	{prefix: "refactor", keywords: []string{"refactor", "rewrite", "restructure", "improve"}},
}

// CommitMessage builds a conventional "<type>: <description>" commit message
// for a task description.
func CommitMessage(description string) string {
	lower := strings.ToLower(description)

	for _, ct := range commitTypes {
		for _, kw := range ct.keywords {
			if strings.Contains(lower, kw) {
				return ct.prefix + ": " + description
			}
		}
	}

	return "feat: " + description
}
