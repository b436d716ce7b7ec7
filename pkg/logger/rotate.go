package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeLayout = "20060102T150405.000"

// rotateWriter appends to a single file and rotates it once the configured
// size is exceeded. Rotated files get a timestamp suffix; old backups are
// pruned by count and by age.
type rotateWriter struct {
	mu sync.Mutex

	path       string
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration

	file *os.File
	size int64
}

func newRotateWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotateWriter, error) {
	if path == "" {
		return nil, errors.New("rotate writer needs a path")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotateWriter{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *rotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *rotateWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

func (w *rotateWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.size = 0

	backup := fmt.Sprintf("%s.%s", w.path, time.Now().UTC().Format(backupTimeLayout))
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate audit log: %w", err)
	}

	w.prune()
	return nil
}

// prune removes backups beyond the retention count or older than maxAge.
func (w *rotateWriter) prune() {
	backups, err := w.listBackups()
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-w.maxAge)
	keep := backups
	if len(keep) > w.maxBackups {
		for _, stale := range keep[:len(keep)-w.maxBackups] {
			_ = os.Remove(stale)
		}
		keep = keep[len(keep)-w.maxBackups:]
	}
	for _, candidate := range keep {
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(candidate)
		}
	}
}

// listBackups returns backup paths sorted oldest first. The timestamp suffix
// sorts lexicographically in creation order.
func (w *rotateWriter) listBackups() ([]string, error) {
	entries, err := os.ReadDir(filepath.Dir(w.path))
	if err != nil {
		return nil, err
	}

	prefix := filepath.Base(w.path) + "."
	backups := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		backups = append(backups, filepath.Join(filepath.Dir(w.path), entry.Name()))
	}
	sort.Strings(backups)
	return backups, nil
}
