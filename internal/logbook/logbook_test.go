package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fiberlab.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	t.Cleanup(func() { _ = book.Close() })
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestPrintfPicksLevelFromMessage(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "logs", "fiberlab.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	t.Cleanup(func() { _ = book.Close() })
	book.clock = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	book.Printf("scheduler: flush failed for %d cell(s)", 1)
	book.Printf("scheduler: deferred low-priority update to %s", "items")
	book.Printf("flushed %d", 2)
	lines, _ := book.Tail(10)
	want := []string{
		"2024-01-02T03:04:05Z ERROR scheduler: flush failed for 1 cell(s)",
		"2024-01-02T03:04:05Z WARN  scheduler: deferred low-priority update to items",
		"2024-01-02T03:04:05Z INFO  flushed 2",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	book.Printf("ignored")
	if err := book.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook tail = %v, %d", lines, total)
	}
	if book.Path() != "" {
		t.Fatalf("nil logbook path should be empty")
	}
}

func TestTailWithFewerEntriesThanRequested(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "fiberlab.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	t.Cleanup(func() { _ = book.Close() })
	book.Warn("only %s", "one")
	lines, total := book.Tail(4)
	if total != 1 || len(lines) != 1 || !strings.HasSuffix(lines[0], "WARN  only one") {
		t.Fatalf("tail = %v (%d)", lines, total)
	}
}

func TestClosedLogbookDropsEntries(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "fiberlab.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Info("before close")
	if err := book.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := book.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	book.Info("after close")
	lines, total := book.Tail(5)
	if total != 1 || !strings.Contains(lines[0], "before close") {
		t.Fatalf("tail after close = %v (%d)", lines, total)
	}
}
