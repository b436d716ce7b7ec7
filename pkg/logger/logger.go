// Package logger wires the process-wide structured loggers. The default
// logger carries diagnostic output; a second audit logger records search-job
// lifecycle events and alert deliveries, optionally to a size-rotated file.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application loggers should behave.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Format selects the handler: "text" or "json" (default).
	Format string
	// OutputPaths lists sinks: "stdout", "stderr" or file paths.
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the audit log sink and its rotation policy.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var global struct {
	once    sync.Once
	initErr error

	base    *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
}

// Init configures the global loggers. Only the first call takes effect.
func Init(cfg Config) error {
	global.once.Do(func() {
		opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level), AddSource: true}

		handler, err := newHandler(cfg.Format, cfg.OutputPaths, opts)
		if err != nil {
			global.initErr = err
			return
		}
		global.base = slog.New(handler)
		global.audit = global.base

		if cfg.Audit.Enabled {
			auditLogger, err := newAuditLogger(cfg.Audit)
			if err != nil {
				global.initErr = err
				return
			}
			global.audit = auditLogger
		}
	})
	if global.initErr != nil {
		return global.initErr
	}
	if global.base == nil {
		return errors.New("logger initialisation already failed")
	}
	return nil
}

// L returns the process logger, initialising defaults on first use.
func L() *slog.Logger {
	if global.base == nil {
		_ = Init(Config{})
	}
	return global.base
}

// Audit returns the audit logger, falling back to the process logger.
func Audit() *slog.Logger {
	if global.audit == nil {
		return L()
	}
	return global.audit
}

// Named returns a child logger whose attributes are grouped under name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync closes file-backed sinks. Call it once on shutdown.
func Sync() error {
	var err error
	for _, closer := range global.closers {
		err = errors.Join(err, closer.Close())
	}
	global.closers = nil
	return err
}

func newHandler(format string, sinks []string, opts *slog.HandlerOptions) (slog.Handler, error) {
	if len(sinks) == 0 {
		sinks = []string{"stdout"}
	}

	writers := make([]io.Writer, 0, len(sinks))
	for _, sink := range sinks {
		writer, closer, err := resolveSink(sink)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			global.closers = append(global.closers, closer)
		}
		writers = append(writers, writer)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func newAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}

	writer, err := newRotateWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	global.closers = append(global.closers, writer)

	// Audit entries are always JSON so downstream collectors can index them.
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), nil
}

func resolveSink(sink string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(sink) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(sink), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(sink, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", sink, err)
	}
	return file, file, nil
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
