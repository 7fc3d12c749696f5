// Package storage holds the small filesystem primitives the panel uses to
// persist its own files: atomic replacement and advisory locking.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrWouldBlock is returned by TryLock when another process holds the lock.
var ErrWouldBlock = errors.New("lock is held by another process")

// AtomicWriteFile writes data to a temporary file in the target directory
// and renames it over path, so readers never observe a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(name, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// FileLock is an exclusive advisory lock backed by a lock file.
type FileLock struct {
	file *os.File
}

// TryLock takes an exclusive lock on path without waiting, creating the
// lock file if needed. It returns ErrWouldBlock when the lock is taken.
func TryLock(path string) (*FileLock, error) {
	f, err := acquireFileLock(path)
	if err != nil {
		return nil, err
	}
	return &FileLock{file: f}, nil
}

// Unlock releases the lock and removes the lock file. It is safe to call
// more than once.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := releaseFileLock(l.file)
	l.file = nil
	return err
}
