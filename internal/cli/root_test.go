package cli

import (
	"strings"
	"testing"
)

func TestRootDefaultsToRun(t *testing.T) {
	// A bare invocation delegates to run, which reads the config, hint, and
	// verbose flags. Pointing at a missing config makes it fail fast after
	// the flag lookups.
	_, err := execute(t, "-c", "/nonexistent/opencoder.json")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if strings.Contains(err.Error(), "flag accessed but not defined") {
		t.Fatalf("run flags not resolvable from the root command: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunFlagsRegisteredOnRoot(t *testing.T) {
	for _, name := range []string{"config", "hint", "verbose"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag %q not registered on the root command", name)
		}
	}
}
