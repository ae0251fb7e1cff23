// Package logging implements the durable log sink for orchestration runs:
// a continuously-appended primary log, a per-cycle log file, and a separate
// alerts file that only receives error-level lines. Every line is
// timestamped. Retention is enforced by deleting old cycle logs.
package logging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const cycleLogPrefix = "cycle-"

// Sink writes timestamped log lines to multiple destinations under one
// directory. Writers are buffered; error-level lines and Close flush
// everything so alerts are never lost to a crash of the next phase.
type Sink struct {
	dir string

	mu          sync.Mutex
	primaryFile *os.File
	primary     *bufio.Writer
	alertsFile  *os.File
	alerts      *bufio.Writer
	cycleFile   *os.File
	cycle       *bufio.Writer

	now func() time.Time
}

// NewSink opens (creating if needed) the primary and alerts logs in dir.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	primaryFile, err := openAppend(filepath.Join(dir, "opencoder.log"))
	if err != nil {
		return nil, err
	}

	alertsFile, err := openAppend(filepath.Join(dir, "alerts.log"))
	if err != nil {
		primaryFile.Close()
		return nil, err
	}

	return &Sink{
		dir:         dir,
		primaryFile: primaryFile,
		primary:     bufio.NewWriter(primaryFile),
		alertsFile:  alertsFile,
		alerts:      bufio.NewWriter(alertsFile),
		now:         time.Now,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}

// BeginCycle switches the per-cycle destination to cycle-NNN.log, closing
// the previous cycle's file if one was open.
func (s *Sink) BeginCycle(cycle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeCycleLocked(); err != nil {
		return err
	}

	file, err := openAppend(filepath.Join(s.dir, fmt.Sprintf("%s%03d.log", cycleLogPrefix, cycle)))
	if err != nil {
		return err
	}

	s.cycleFile = file
	s.cycle = bufio.NewWriter(file)
	return nil
}

// Infof logs an informational line.
func (s *Sink) Infof(format string, args ...any) {
	s.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warning line.
func (s *Sink) Warnf(format string, args ...any) {
	s.write(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an error line. Error lines additionally go to the alerts file
// and force a flush of all destinations.
func (s *Sink) Errorf(format string, args ...any) {
	s.write(LevelError, fmt.Sprintf(format, args...))
}

func (s *Sink) write(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s\n", s.now().Format("2006-01-02 15:04:05"), level, strings.TrimRight(msg, "\n"))

	s.primary.WriteString(line)
	if s.cycle != nil {
		s.cycle.WriteString(line)
	}

	if level == LevelError {
		s.alerts.WriteString(line)
		s.flushLocked()
	}
}

// Flush forces buffered lines to disk.
func (s *Sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Sink) flushLocked() {
	s.primary.Flush()
	s.alerts.Flush()
	if s.cycle != nil {
		s.cycle.Flush()
	}
}

// CleanupOlderThan deletes cycle log files whose modification time is more
// than the given number of days in the past. It returns the number of files
// removed. A retention of 0 days disables cleanup.
func (s *Sink) CleanupOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, cycleLogPrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove old cycle log %s: %w", name, err)
		}
		removed++
	}

	return removed, nil
}

// Close flushes and closes all destinations.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()

	var firstErr error
	if err := s.closeCycleLocked(); err != nil {
		firstErr = err
	}
	if err := s.primaryFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.alertsFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Sink) closeCycleLocked() error {
	if s.cycleFile == nil {
		return nil
	}
	s.cycle.Flush()
	err := s.cycleFile.Close()
	s.cycleFile = nil
	s.cycle = nil
	return err
}
