// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across the upgrader.
// Output goes to the console and, when a file path is configured, to a
// per-invocation log file. The process never logs silently to one sink only:
// an operator watching the terminal and an operator reading the log file see
// the same decisions.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kestrelworks/kestrelup/internal/brand"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted: "debug", "info", "warn", "error".
	Level string
	// File is an optional log file path. Empty means console only.
	File string
	// Console disables stderr output when false. File-only logging is used
	// by tests that capture the file.
	Console bool
}

// DefaultConfig returns the default logger configuration: info level,
// console only.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Console: true,
	}
}

// Logger wraps slog with the small surface the rest of the code uses.
type Logger struct {
	sl   *slog.Logger
	file *os.File
}

// New creates a logger from the given configuration. A file that cannot be
// opened degrades to console-only logging rather than failing the run.
func New(cfg Config) *Logger {
	var writers []io.Writer
	var file *os.File

	if cfg.Console {
		writers = append(writers, os.Stderr)
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				writers = append(writers, f)
				file = f
			}
		}
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return &Logger{sl: slog.New(handler), file: file}
}

// InvocationLogFile returns the per-invocation log file path for a target
// version, named with product, version and timestamp under the log directory.
func InvocationLogFile(logDir, version string, now time.Time) string {
	name := fmt.Sprintf("%s_upgrade_%s_%s.log", brand.LowerName, version, now.Format("20060102-150405"))
	return filepath.Join(logDir, name)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.sl.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.sl.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

// With returns a logger with bound attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...), file: l.file}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
