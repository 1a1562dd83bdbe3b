package governor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with governor-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPermit adds a permit_id field to the logger.
func (l *Logger) WithPermit(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("permit_id", id.String()),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogAdmission logs the outcome of an AcquirePermit call.
func (l *Logger) LogAdmission(ctx context.Context, id uuid.UUID, wait time.Duration, err error) {
	switch {
	case err == nil:
		if l.Enabled(ctx, slog.LevelDebug) {
			l.WithPermit(id).DebugContext(ctx, "permit granted", "wait", wait)
		}
	case errors.Is(err, ErrRAMLimitExceeded):
		l.WarnContext(ctx, "admission rejected",
			"wait", wait,
			"error", err,
		)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		l.DebugContext(ctx, "admission abandoned",
			"wait", wait,
			"error", err,
		)
	default:
		l.ErrorContext(ctx, "admission failed",
			"wait", wait,
			"error", err,
		)
	}
}

// LogRelease logs a permit being returned.
func (l *Logger) LogRelease(ctx context.Context, id uuid.UUID, held time.Duration) {
	if l.Enabled(ctx, slog.LevelDebug) {
		l.WithPermit(id).DebugContext(ctx, "permit released", "held", held)
	}
}

// LogThrottle logs a soft throttle against the given limit.
func (l *Logger) LogThrottle(ctx context.Context, kind ThrottleKind, limit uint64) {
	l.DebugContext(ctx, "operation throttled",
		"kind", string(kind),
		"limit", limit,
	)
}

// LogPause logs a pause state transition.
func (l *Logger) LogPause(ctx context.Context, paused bool) {
	if paused {
		l.InfoContext(ctx, "governor paused")
	} else {
		l.InfoContext(ctx, "governor resumed")
	}
}

// LogRAMUnderflow logs a deallocation report larger than the tracked usage.
func (l *Logger) LogRAMUnderflow(ctx context.Context, requested, short uint64) {
	l.WarnContext(ctx, "ram deallocation exceeds tracked usage",
		"requested", requested,
		"short", short,
	)
}

// LogLeakedPermit logs a permit that was garbage collected without Release.
func (l *Logger) LogLeakedPermit(ctx context.Context, id uuid.UUID) {
	l.WithPermit(id).WarnContext(ctx, "permit collected without release")
}
