package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the opencoder.json (or opencoder.yaml) configuration file.
// The loaded value is treated as an immutable snapshot for the process lifetime.
type Config struct {
	Version            string `json:"version" yaml:"version"`
	ProjectDir         string `json:"project_dir" yaml:"project_dir"`
	PlanningModel      string `json:"planning_model" yaml:"planning_model"`
	ExecutionModel     string `json:"execution_model" yaml:"execution_model"`
	AgentCommand       string `json:"agent_command,omitempty" yaml:"agent_command,omitempty"`
	MaxRetries         int    `json:"max_retries" yaml:"max_retries"`
	BackoffBaseSeconds int    `json:"backoff_base_seconds" yaml:"backoff_base_seconds"`
	TaskPauseSeconds   int    `json:"task_pause_seconds" yaml:"task_pause_seconds"`
	LogRetentionDays   int    `json:"log_retention_days" yaml:"log_retention_days"`
	MaxFileSizeBytes   int64  `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	UserHint           string `json:"user_hint,omitempty" yaml:"user_hint,omitempty"`
	Verbose            bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// GenerateDefault creates a new Config with default values.
func GenerateDefault() *Config {
	return &Config{
		Version:            "1.0",
		ProjectDir:         ".",
		PlanningModel:      "anthropic/claude-opus-4-5",
		ExecutionModel:     "anthropic/claude-sonnet-4-5",
		AgentCommand:       "opencode",
		MaxRetries:         3,
		BackoffBaseSeconds: 2,
		TaskPauseSeconds:   5,
		LogRetentionDays:   14,
		MaxFileSizeBytes:   262144,
	}
}

// Validate checks the configuration for errors and returns user-friendly
// error messages. Configuration errors are fatal and reported before the
// orchestration loop starts.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.PlanningModel == "" {
		return fmt.Errorf("configuration error: missing required field 'planning_model'\n\nHint: Specify the model used for planning and evaluation:\n  \"planning_model\": \"anthropic/claude-opus-4-5\"")
	}

	if c.ExecutionModel == "" {
		return fmt.Errorf("configuration error: missing required field 'execution_model'\n\nHint: Specify the model used for task execution:\n  \"execution_model\": \"anthropic/claude-sonnet-4-5\"")
	}

	if c.ProjectDir == "" {
		return fmt.Errorf("configuration error: missing required field 'project_dir'")
	}

	info, err := os.Stat(c.ProjectDir)
	if err != nil {
		return fmt.Errorf("configuration error: project_dir %q does not exist: %w", c.ProjectDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("configuration error: project_dir %q is not a directory", c.ProjectDir)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("configuration error: 'max_retries' must be at least 1, got %d", c.MaxRetries)
	}

	if c.BackoffBaseSeconds < 0 {
		return fmt.Errorf("configuration error: 'backoff_base_seconds' must be non-negative, got %d", c.BackoffBaseSeconds)
	}

	if c.TaskPauseSeconds < 0 {
		return fmt.Errorf("configuration error: 'task_pause_seconds' must be non-negative, got %d", c.TaskPauseSeconds)
	}

	if c.LogRetentionDays < 0 {
		return fmt.Errorf("configuration error: 'log_retention_days' must be non-negative, got %d", c.LogRetentionDays)
	}

	if c.MaxFileSizeBytes < 1 {
		return fmt.Errorf("configuration error: 'max_file_size_bytes' must be positive, got %d", c.MaxFileSizeBytes)
	}

	return nil
}

// LoadFromFile loads a configuration from a JSON or YAML file, chosen by
// file extension. Anything that is not .yaml/.yml is parsed as JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return &cfg, nil
}

// SaveToFile writes the configuration as JSON with 0600 permissions.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// FindInTree searches the current directory and its ancestors for an
// opencoder config file. Returns the empty string if none is found.
func FindInTree() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	names := []string{"opencoder.json", "opencoder.yaml", "opencoder.yml"}
	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}
