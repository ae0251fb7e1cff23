// Package workspace defines the orchestrator's on-disk layout inside a
// project: a single .opencoder directory holding the plan, the execution
// state, and the log files.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the orchestrator's private directory for a project.
func Dir(projectDir string) string {
	return filepath.Join(projectDir, ".opencoder")
}

// LogsDir returns the log directory for a project.
func LogsDir(projectDir string) string {
	return filepath.Join(Dir(projectDir), "logs")
}

// PlanPath returns the fixed plan file location for a project.
func PlanPath(projectDir string) string {
	return filepath.Join(Dir(projectDir), "plan.md")
}

// Initialize creates the work directory tree with 0700 permissions.
// Idempotent - safe to call multiple times.
func Initialize(projectDir string) error {
	for _, path := range []string{Dir(projectDir), LogsDir(projectDir)} {
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	// The work directory lives inside the user's repository; ignoring its
	// contents keeps plan, state, and logs out of the commits the loop makes.
	ignorePath := filepath.Join(Dir(projectDir), ".gitignore")
	if err := os.WriteFile(ignorePath, []byte("*\n"), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", ignorePath, err)
	}
	return nil
}

// IsInitialized checks whether a project already has the work directory tree.
func IsInitialized(projectDir string) (bool, error) {
	for _, path := range []string{Dir(projectDir), LogsDir(projectDir)} {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", path, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}
