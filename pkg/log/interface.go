// Package log provides the structured logging interface shared by every stage of the
// propensity training pipeline and the serving layer.
//
// The interface is slog-compatible so the backend can be swapped without touching call
// sites. The default backend is zerolog (see NewZerologProvider). A provider is installed
// once at process start with Init and components obtain named loggers from it:
//
//	log.Init("info", os.Stderr)
//	logger := log.GetLoggerWithName("preprocessing").With(
//	    log.StageKey, log.StagePreprocess,
//	)
//	logger.Info("Dropped duplicates",
//	    log.RowsKey, 4888,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. If the first field is an error it is
// logged under the "error" key together with its stack trace when one is attached.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	//
	// Example:
	//   logger.Debug("Split candidate", "feature", 3, "gain", 0.12)
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	//
	// Example:
	//   logger.Info("Model trained", log.AccuracyKey, 0.91)
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	// If an error value is provided as the first field, stack trace
	// information is included automatically.
	//
	// Example:
	//   logger.Error("Ingestion failed", err, log.SourceKey, path)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
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

// LoggerProvider defines an interface for creating and configuring loggers.
// Components receive loggers from a provider instead of referencing a global sink.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger with a specific name/component identifier.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
