// Package logbook writes the daily audit trail: one append-only file per
// calendar day, every line timestamped. It is an io.Writer so it can back a
// slog handler, and every orchestrator decision point lands here.
package logbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logbook appends to log_YYYY-MM-DD.txt under Dir, reopening the file when
// the calendar day changes between writes.
type Logbook struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

func Open(dir string) *Logbook {
	return &Logbook{dir: dir, now: time.Now}
}

// FileName returns the log file name for the given day.
func FileName(day time.Time) string {
	return "log_" + day.Format("2006-01-02") + ".txt"
}

func (l *Logbook) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensure(); err != nil {
		return 0, err
	}
	return l.f.Write(p)
}

// Note records a single timestamped line, matching the original hand-written
// log format. Errors are returned so callers can decide to ignore them;
// logging must never take the loop down.
func (l *Logbook) Note(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensure(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(l.f, "%s: %s\n", l.now().Format("15:04:05"), msg)
	return err
}

func (l *Logbook) ensure() error {
	day := l.now().Format("2006-01-02")
	if l.f != nil && day == l.day {
		return nil
	}
	if l.f != nil {
		l.f.Close()
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("logbook: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, FileName(l.now())), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbook: %w", err)
	}
	l.f = f
	l.day = day
	return nil
}

func (l *Logbook) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
