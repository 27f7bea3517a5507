package lexgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with lexgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogFlush logs a full flush.
func (l *Logger) LogFlush(ctx context.Context, segments int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"took", took,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"segments", segments,
			"took", took,
		)
	}
}

// LogApplyDeletes logs a pass resolving buffered deletes and updates.
func (l *Logger) LogApplyDeletes(ctx context.Context, deleted, updated int, took time.Duration) {
	l.DebugContext(ctx, "deletes applied",
		"deleted", deleted,
		"updated", updated,
		"took", took,
	)
}

// LogStall logs an indexing goroutine held back until flushing caught up.
func (l *Logger) LogStall(ctx context.Context, took time.Duration) {
	l.WarnContext(ctx, "indexing stalled",
		"took", took,
	)
}

// LogMerge logs a merge.
func (l *Logger) LogMerge(ctx context.Context, inputs []string, merged string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed",
			"inputs", inputs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "merge completed",
			"inputs", inputs,
			"segment", merged,
		)
	}
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, generation uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "commit completed",
			"generation", generation,
		)
	}
}
