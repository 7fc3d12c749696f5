package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingFile is an io.WriteCloser that rotates by size. When a write would
// push the file past its limit, the file becomes <path>.1, <path>.1 becomes
// <path>.2 and so on, keeping at most maxBackups old files.
//
// All operations are safe for concurrent use.
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	limit      int64
	maxBackups int
	size       int64
	file       *os.File
}

var _ io.WriteCloser = (*RotatingFile)(nil)

// OpenRotatingFile opens (appending to) path. maxSizeMB is clamped to at
// least 1; maxBackups to at least 0, where 0 truncates on rotation.
func OpenRotatingFile(path string, maxSizeMB, maxBackups int) (*RotatingFile, error) {
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	return openRotatingFile(path, int64(maxSizeMB)*1024*1024, maxBackups)
}

func openRotatingFile(path string, limit int64, maxBackups int) (*RotatingFile, error) {
	if maxBackups < 0 {
		maxBackups = 0
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log file dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat log file %s: %w", path, err)
	}
	return &RotatingFile{
		path:       path,
		limit:      limit,
		maxBackups: maxBackups,
		size:       info.Size(),
		file:       f,
	}, nil
}

// Write appends p, rotating first if p would not fit. A single write is never
// split across files.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotateLocked(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", w.path, err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFile) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	if w.maxBackups == 0 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(w.backup(w.maxBackups))
		for n := w.maxBackups - 1; n >= 1; n-- {
			_ = os.Rename(w.backup(n), w.backup(n+1))
		}
		_ = os.Rename(w.path, w.backup(1))
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.file = nil
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func (w *RotatingFile) backup(n int) string {
	return w.path + "." + strconv.Itoa(n)
}
