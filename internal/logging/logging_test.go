package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestSinkWritesPrimaryLog(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	sink.Infof("starting cycle %d", 1)
	sink.Warnf("plan invalid, retrying")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, filepath.Join(dir, "opencoder.log"))
	if !strings.Contains(content, "[INFO] starting cycle 1") {
		t.Errorf("primary log missing info line:\n%s", content)
	}
	if !strings.Contains(content, "[WARN] plan invalid, retrying") {
		t.Errorf("primary log missing warn line:\n%s", content)
	}
}

func TestSinkTimestampsLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	sink.Infof("hello")
	sink.Close()

	content := readLog(t, filepath.Join(dir, "opencoder.log"))
	if !strings.HasPrefix(content, "2026-03-14 09:26:53 [INFO] hello") {
		t.Errorf("line not timestamped as expected:\n%s", content)
	}
}

func TestErrorsGoToAlertsAndFlushImmediately(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	sink.Infof("routine line")
	sink.Errorf("task %d failed terminally", 3)

	// No Close yet: the error must already be on disk.
	alerts := readLog(t, filepath.Join(dir, "alerts.log"))
	if !strings.Contains(alerts, "[ERROR] task 3 failed terminally") {
		t.Errorf("alerts log missing error line:\n%s", alerts)
	}
	if strings.Contains(alerts, "routine line") {
		t.Error("info line leaked into alerts log")
	}

	primary := readLog(t, filepath.Join(dir, "opencoder.log"))
	if !strings.Contains(primary, "routine line") {
		t.Error("error flush should also flush buffered info lines")
	}
}

func TestCycleLog(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.BeginCycle(1); err != nil {
		t.Fatalf("BeginCycle() error = %v", err)
	}
	sink.Infof("cycle one line")

	if err := sink.BeginCycle(2); err != nil {
		t.Fatalf("BeginCycle() error = %v", err)
	}
	sink.Infof("cycle two line")
	sink.Close()

	one := readLog(t, filepath.Join(dir, "cycle-001.log"))
	if !strings.Contains(one, "cycle one line") {
		t.Errorf("cycle-001.log missing its line:\n%s", one)
	}
	if strings.Contains(one, "cycle two line") {
		t.Error("cycle-001.log contains a later cycle's line")
	}

	two := readLog(t, filepath.Join(dir, "cycle-002.log"))
	if !strings.Contains(two, "cycle two line") {
		t.Errorf("cycle-002.log missing its line:\n%s", two)
	}

	// Both lines still land in the primary log
	primary := readLog(t, filepath.Join(dir, "opencoder.log"))
	if !strings.Contains(primary, "cycle one line") || !strings.Contains(primary, "cycle two line") {
		t.Error("primary log should contain lines from every cycle")
	}
}

func TestCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	oldPath := filepath.Join(dir, "cycle-001.log")
	newPath := filepath.Join(dir, "cycle-002.log")
	for _, p := range []string{oldPath, newPath} {
		if err := os.WriteFile(p, []byte("x\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	stale := time.Now().Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, err := sink.CleanupOlderThan(7)
	if err != nil {
		t.Fatalf("CleanupOlderThan() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old cycle log should have been deleted")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("recent cycle log should have been kept")
	}

	// Primary and alerts logs are never subject to retention
	if _, err := os.Stat(filepath.Join(dir, "opencoder.log")); err != nil {
		t.Error("primary log should never be deleted")
	}
}

func TestCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	path := filepath.Join(dir, "cycle-001.log")
	if err := os.WriteFile(path, []byte("x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-100 * 24 * time.Hour)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, err := sink.CleanupOlderThan(0)
	if err != nil {
		t.Fatalf("CleanupOlderThan(0) error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 when retention disabled", removed)
	}
}
