package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := GenerateDefault()
	cfg.ProjectDir = t.TempDir()
	return cfg
}

func TestGenerateDefault(t *testing.T) {
	cfg := GenerateDefault()

	if cfg.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", cfg.Version)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.AgentCommand != "opencode" {
		t.Errorf("AgentCommand = %s, want opencode", cfg.AgentCommand)
	}
	if cfg.PlanningModel == "" || cfg.ExecutionModel == "" {
		t.Error("default models must be set")
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Errorf("valid config failed validation: %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantMsg: "version",
		},
		{
			name:    "missing planning model",
			mutate:  func(c *Config) { c.PlanningModel = "" },
			wantMsg: "planning_model",
		},
		{
			name:    "missing execution model",
			mutate:  func(c *Config) { c.ExecutionModel = "" },
			wantMsg: "execution_model",
		},
		{
			name:    "nonexistent project dir",
			mutate:  func(c *Config) { c.ProjectDir = "/nonexistent/path/for/test" },
			wantMsg: "project_dir",
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.MaxRetries = 0 },
			wantMsg: "max_retries",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.BackoffBaseSeconds = -1 },
			wantMsg: "backoff_base_seconds",
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.MaxFileSizeBytes = 0 },
			wantMsg: "max_file_size_bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateProjectDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.ProjectDir = file

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when project_dir is a regular file")
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "opencoder.json")

	original := validConfig(t)
	original.UserHint = "prefer small commits"

	if err := original.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loaded.PlanningModel != original.PlanningModel {
		t.Errorf("PlanningModel = %s, want %s", loaded.PlanningModel, original.PlanningModel)
	}
	if loaded.UserHint != original.UserHint {
		t.Errorf("UserHint = %s, want %s", loaded.UserHint, original.UserHint)
	}
	if loaded.MaxFileSizeBytes != original.MaxFileSizeBytes {
		t.Errorf("MaxFileSizeBytes = %d, want %d", loaded.MaxFileSizeBytes, original.MaxFileSizeBytes)
	}
}

func TestLoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "opencoder.yaml")

	content := `version: "1.0"
project_dir: .
planning_model: anthropic/claude-opus-4-5
execution_model: anthropic/claude-sonnet-4-5
max_retries: 5
backoff_base_seconds: 1
task_pause_seconds: 0
log_retention_days: 7
max_file_size_bytes: 65536
verbose: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if !cfg.Verbose {
		t.Error("Verbose = false, want true")
	}
	if cfg.ExecutionModel != "anthropic/claude-sonnet-4-5" {
		t.Errorf("ExecutionModel = %s", cfg.ExecutionModel)
	}
}

func TestLoadMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "opencoder.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}
