// Package log provides the structured logging interface used by every
// classifier and engine in binclf.
//
// The interface is slog-compatible (key/value field pairs, numeric levels
// matching slog.Level). The default implementation is backed by zerolog and
// writes JSON lines to stderr; tests swap it for a TestLogger.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("gam").With(
//	    log.ModelNameKey, "LogisticGAM",
//	    log.EstimatorIDKey, id,
//	)
//	logger.Debug("fit started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 100,
//	    log.FeaturesKey, 3,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. With returns a child logger that
// carries the given fields on every record.
type Logger interface {
	// Debug logs diagnostic detail (per-iteration progress, chosen bandwidths).
	Debug(msg string, fields ...any)

	// Info logs operational events.
	Info(msg string, fields ...any)

	// Warn logs recoverable problems such as non-convergence.
	Warn(msg string, fields ...any)

	// Error logs failures. An error value may be passed under the "error" key.
	Error(msg string, fields ...any)

	// With returns a Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. The package-level GetLogger and
// GetLoggerWithName delegate to the installed provider.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers created by this provider.
	SetLevel(level Level)
}
