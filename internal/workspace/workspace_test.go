package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeCreatesLayout(t *testing.T) {
	projectDir := t.TempDir()

	if err := Initialize(projectDir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	for _, path := range []string{Dir(projectDir), LogsDir(projectDir)} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected directory %s: %v", path, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", path)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s has permissions %o, want 0700", path, perm)
		}
	}
}

func TestInitializeWritesGitignore(t *testing.T) {
	projectDir := t.TempDir()

	if err := Initialize(projectDir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(Dir(projectDir), ".gitignore"))
	if err != nil {
		t.Fatalf("expected .gitignore in work dir: %v", err)
	}
	if got := string(data); got != "*\n" {
		t.Errorf(".gitignore content = %q, want %q", got, "*\n")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	projectDir := t.TempDir()

	if err := Initialize(projectDir); err != nil {
		t.Fatalf("first Initialize() error = %v", err)
	}
	if err := Initialize(projectDir); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
}

func TestIsInitialized(t *testing.T) {
	projectDir := t.TempDir()

	ok, err := IsInitialized(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("fresh project reported as initialized")
	}

	if err := Initialize(projectDir); err != nil {
		t.Fatal(err)
	}

	ok, err = IsInitialized(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("initialized project reported as uninitialized")
	}
}

func TestIsInitializedRejectsFileInPlace(t *testing.T) {
	projectDir := t.TempDir()

	if err := os.WriteFile(Dir(projectDir), []byte("not a directory"), 0600); err != nil {
		t.Fatal(err)
	}

	ok, err := IsInitialized(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("a plain file at the work dir path should not count as initialized")
	}
}

func TestPaths(t *testing.T) {
	if got := PlanPath("/proj"); got != filepath.Join("/proj", ".opencoder", "plan.md") {
		t.Errorf("PlanPath = %q", got)
	}
	if got := LogsDir("/proj"); got != filepath.Join("/proj", ".opencoder", "logs") {
		t.Errorf("LogsDir = %q", got)
	}
}
