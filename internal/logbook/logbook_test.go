package logbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNoteAppendsTimestampedLines(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)
	l.now = func() time.Time { return time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC) }
	defer l.Close()

	if err := l.Note("first"); err != nil {
		t.Fatal(err)
	}
	if err := l.Note("second"); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "log_2025-03-02.txt"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if !strings.Contains(got, "09:30:00: first\n") || !strings.Contains(got, "09:30:00: second\n") {
		t.Errorf("unexpected log contents:\n%s", got)
	}
}

func TestRollsToNewFileOnDayChange(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)
	day := time.Date(2025, 3, 2, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day }
	defer l.Close()

	if err := l.Note("before midnight"); err != nil {
		t.Fatal(err)
	}
	day = day.Add(2 * time.Minute)
	if err := l.Note("after midnight"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "log_2025-03-02.txt")); err != nil {
		t.Errorf("missing first day file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "log_2025-03-03.txt")); err != nil {
		t.Errorf("missing second day file: %v", err)
	}
}

func TestWriteAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	l := Open(dir)
	l.now = func() time.Time { return time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC) }
	if _, err := l.Write([]byte("one\n")); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2 := Open(dir)
	l2.now = l.now
	if _, err := l2.Write([]byte("two\n")); err != nil {
		t.Fatal(err)
	}
	l2.Close()

	b, err := os.ReadFile(filepath.Join(dir, "log_2025-03-02.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "one\ntwo\n" {
		t.Errorf("got %q, want appended lines from both opens", string(b))
	}
}
