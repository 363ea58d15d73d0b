// Package logging provides structured logging with slog for circled.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileRotator handles size-based log file rotation.
type FileRotator struct {
	path       string
	maxSize    int64 // bytes
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileRotator creates a new FileRotator writing to path.
func NewFileRotator(path string, maxSizeMB int64, maxBackups int) (*FileRotator, error) {
	if path == "" {
		return nil, fmt.Errorf("rotator: empty file path")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	r := &FileRotator{
		path:       path,
		maxSize:    maxSizeMB * 1024 * 1024,
		maxBackups: maxBackups,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the current log file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate renames the current file with a timestamp suffix and opens a new
// one, pruning old backups beyond maxBackups.
func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}
	r.file = nil

	backup := fmt.Sprintf("%s.%s", r.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(r.path, backup); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.pruneBackups(); err != nil {
		return err
	}

	return r.openFile()
}

func (r *FileRotator) pruneBackups() error {
	if r.maxBackups <= 0 {
		return nil
	}

	matches, err := filepath.Glob(r.path + ".*")
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	if len(matches) <= r.maxBackups {
		return nil
	}

	// Timestamp suffixes sort lexically, oldest first.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-r.maxBackups] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
	}
	return nil
}
