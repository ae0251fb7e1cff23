package plan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const samplePlan = `# Plan

## Tasks

- [ ] Implement the config loader
- [x] Set up the repository skeleton
Some prose in between that is not a task.
- [ ] Add retry logic to the process runner
`

func TestParse(t *testing.T) {
	tasks := Parse(samplePlan)

	want := []Task{
		{Description: "Implement the config loader", Completed: false, Line: 5},
		{Description: "Set up the repository skeleton", Completed: true, Line: 6},
		{Description: "Add retry logic to the process runner", Completed: false, Line: 8},
	}

	if diff := cmp.Diff(want, tasks); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCaseInsensitiveX(t *testing.T) {
	tasks := Parse("- [X] shouted done\n- [x] quiet done\n")
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if !task.Completed {
			t.Errorf("task %q not completed", task.Description)
		}
	}
}

func TestParseIgnoresNonMatching(t *testing.T) {
	text := `* [ ] wrong bullet
-[ ] missing space
- [] empty box
- [ ]
plain prose
`
	if tasks := Parse(text); len(tasks) != 0 {
		t.Errorf("Parse() = %v, want no tasks", tasks)
	}
}

func TestParseIndented(t *testing.T) {
	tasks := Parse("  - [ ] indented task\n")
	if len(tasks) != 1 {
		t.Fatalf("len = %d, want 1", len(tasks))
	}
	if tasks[0].Description != "indented task" {
		t.Errorf("Description = %q", tasks[0].Description)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{name: "empty", text: "", want: ErrEmptyPlan},
		{name: "whitespace only", text: "  \n\t\n", want: ErrEmptyPlan},
		{name: "prose only", text: "# Plan\nprose only", want: ErrNoActionableTasks},
		{name: "all completed", text: "- [x] done", want: ErrAllTasksCompleted},
		{name: "valid", text: "- [ ] todo", want: nil},
		{name: "mixed", text: "- [x] done\n- [ ] todo", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMarkComplete(t *testing.T) {
	before := Parse(samplePlan)
	updated := MarkComplete(samplePlan, 5)
	after := Parse(updated)

	if len(after) != len(before) {
		t.Fatalf("task count changed: %d -> %d", len(before), len(after))
	}

	for i, task := range after {
		if task.Line == 5 {
			if !task.Completed {
				t.Error("task at line 5 not marked completed")
			}
			continue
		}
		if diff := cmp.Diff(before[i], task); diff != "" {
			t.Errorf("unrelated task changed (-before +after):\n%s", diff)
		}
	}

	// Non-checkbox lines are untouched
	if !strings.Contains(updated, "Some prose in between") {
		t.Error("prose line lost")
	}
}

func TestMarkCompleteNoOp(t *testing.T) {
	tests := []struct {
		name string
		line int
	}{
		{name: "line past end", line: 100},
		{name: "zero line", line: 0},
		{name: "negative line", line: -3},
		{name: "prose line", line: 7},
		{name: "heading line", line: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkComplete(samplePlan, tt.line); got != samplePlan {
				t.Errorf("MarkComplete(%d) modified text", tt.line)
			}
		})
	}
}

func TestMarkCompleteAlreadyDone(t *testing.T) {
	updated := MarkComplete(samplePlan, 6)
	if updated != samplePlan {
		t.Error("marking an already-completed task should leave text unchanged")
	}
}

func TestCounts(t *testing.T) {
	if got := CountTotal(samplePlan); got != 3 {
		t.Errorf("CountTotal() = %d, want 3", got)
	}
	if got := CountCompleted(samplePlan); got != 1 {
		t.Errorf("CountCompleted() = %d, want 1", got)
	}
	if got := CountTotal(""); got != 0 {
		t.Errorf("CountTotal(empty) = %d, want 0", got)
	}
}

func TestExtractFromResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "fenced block",
			raw:  "Here is your plan:\n```\n- [ ] task one\n- [ ] task two\n```\nLet me know!",
			want: "- [ ] task one\n- [ ] task two",
		},
		{
			name: "fenced block with language tag",
			raw:  "```markdown\n- [ ] task one\n```",
			want: "- [ ] task one",
		},
		{
			name: "no fence",
			raw:  "  - [ ] bare task  \n",
			want: "- [ ] bare task",
		},
		{
			name: "unterminated fence",
			raw:  "```\n- [ ] task one\n",
			want: "- [ ] task one",
		},
		{
			name: "empty",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFromResponse(tt.raw); got != tt.want {
				t.Errorf("ExtractFromResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "plan.md")

	if err := SaveFile(path, samplePlan); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	loaded, err := LoadFile(path, 1<<20)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded != samplePlan {
		t.Error("loaded plan differs from saved plan")
	}
}

func TestLoadFileOversized(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "plan.md")
	if err := os.WriteFile(path, []byte(samplePlan), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path, 10); err == nil {
		t.Error("expected error for oversized plan file")
	}
}
