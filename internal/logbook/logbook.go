package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// printfLevels maps scheduler diagnostics to a level. First match wins.
var printfLevels = []struct {
	keyword string
	level   Level
}{
	{keyword: "failed", level: LevelError},
	{keyword: "dropped", level: LevelWarn},
	{keyword: "deferred", level: LevelWarn},
}

// Logbook appends scheduler and UI activity to a plain text file so it can be
// inspected after the alt screen is gone. A nil *Logbook discards everything.
type Logbook struct {
	path  string
	clock func() time.Time

	mu   sync.Mutex
	file *os.File
}

// New opens (or creates) the log file at path for appending.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbook: open %s: %w", path, err)
	}
	return &Logbook{path: path, clock: time.Now, file: file}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close releases the file. Later entries are dropped.
func (l *Logbook) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append writes a single entry.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	_, _ = fmt.Fprintf(l.file, "%s %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
}

// Tail returns up to maxLines of the most recent entries plus the total
// number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, 0, maxLines)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(ring) < maxLines {
			ring = append(ring, scanner.Text())
		} else {
			ring[total%maxLines] = scanner.Text()
		}
		total++
	}
	if len(ring) == 0 {
		return nil, total
	}
	if total <= maxLines {
		return ring, total
	}
	start := total % maxLines
	return append(ring[start:], ring[:start]...), total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Printf makes a Logbook usable as a scheduler.Logger.
func (l *Logbook) Printf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	level := LevelInfo
	for _, rule := range printfLevels {
		if strings.Contains(message, rule.keyword) {
			level = rule.level
			break
		}
	}
	l.Append(level, message)
}
