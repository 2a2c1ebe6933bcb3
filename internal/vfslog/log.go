// Package vfslog provides the package-level logging helpers used across
// vfslock: a thin wrapper over log/slog that accepts an optional subject
// (anything with a String method, or nil) the way rclone's fs.Debugf does.
package vfslog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLevel adjusts the minimum level emitted by the package logger.
func SetLevel(level slog.Level) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetHandler replaces the underlying slog handler, for tests that want to
// capture output.
func SetHandler(h slog.Handler) {
	logger = slog.New(h)
}

func format(subject any, format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if subject == nil {
		return msg
	}
	return fmt.Sprintf("%v: %s", subject, msg)
}

// Debugf logs a debug-level narration line, e.g. the verify-step race
// commentary in the acquire handshake.
func Debugf(subject any, f string, args ...any) {
	logger.Log(context.Background(), slog.LevelDebug, format(subject, f, args))
}

// Logf logs an info-level line.
func Logf(subject any, f string, args ...any) {
	logger.Log(context.Background(), slog.LevelInfo, format(subject, f, args))
}

// Warnf logs a warn-level line, used for unclosed-handle warnings.
func Warnf(subject any, f string, args ...any) {
	logger.Log(context.Background(), slog.LevelWarn, format(subject, f, args))
}

// Errorf logs an error-level line, used for backend failures that
// collapse into NotAcquired.
func Errorf(subject any, f string, args ...any) {
	logger.Log(context.Background(), slog.LevelError, format(subject, f, args))
}
