package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Writer maintains the append-only text archive. Every record is written
// and fsynced before the caller proceeds to its database commit, which
// makes the archive the authoritative recovery source: replaying the files
// can rebuild the database, never the other way around.
//
// Append files are line-atomic (encoded line plus newline, then fsync);
// snapshot files are rewritten whole via temp-file-then-rename so a reader
// never observes a partial snapshot.
type Writer struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Writer {
	return &Writer{
		dir: dir,
		now: time.Now,
	}
}

// fileSpec names one archive file: its path relative to the archive root,
// a human-readable title and the documented field order. Title and format
// become the first two lines of the file.
type fileSpec struct {
	relPath string
	title   string
	format  string
}

func monthlyPath(prefix, category string, t time.Time) string {
	return fmt.Sprintf("%s/%d_%02d_%s.txt", prefix, t.Year(), int(t.Month()), category)
}

func dailyPath(prefix, category string, t time.Time) string {
	return fmt.Sprintf("%s/%d_%02d_%02d_%s.txt", prefix, t.Year(), int(t.Month()), t.Day(), category)
}

// appendLine appends one record, creating the file with its header on
// first use. The write is flushed to durable storage before returning;
// any failure is returned to the caller so archive-first ordering can
// abort the database mutation.
func (w *Writer) appendLine(spec fileSpec, fields ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, spec.relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", spec.relPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: stat %s: %w", spec.relPath, err)
	}
	if info.Size() == 0 {
		header := spec.title + "\nFormat: " + spec.format + "\n"
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("archive: write header %s: %w", spec.relPath, err)
		}
	}

	if _, err := f.WriteString(EncodeLine(fields...) + "\n"); err != nil {
		return fmt.Errorf("archive: append %s: %w", spec.relPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("archive: sync %s: %w", spec.relPath, err)
	}
	return nil
}

// writeSnapshot rewrites a full-state file atomically: write to a temp
// file in the same directory, fsync, then rename over the target.
func (w *Writer) writeSnapshot(spec fileSpec, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, spec.relPath)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.WriteString(spec.title + "\nFormat: " + spec.format + "\n"); err != nil {
		return fmt.Errorf("archive: write header %s: %w", spec.relPath, err)
	}
	for _, row := range rows {
		if _, err := f.WriteString(EncodeLine(row...) + "\n"); err != nil {
			return fmt.Errorf("archive: write snapshot %s: %w", spec.relPath, err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("archive: sync %s: %w", spec.relPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("archive: set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("archive: rename %s: %w", spec.relPath, err)
	}
	success = true
	return nil
}

func (w *Writer) timestamp() string {
	return w.now().Format(timestampLayout)
}
