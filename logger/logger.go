// Package logger provides a structured logging facade backed by zerolog.
// Components receive a Logger and may derive scoped loggers with With, so
// every log line carries the session or component context it belongs to.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logging interface used throughout the server.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a derived Logger that includes the given fields in all
	// subsequent entries. The receiver is unchanged.
	With(fields ...Field) Logger
}

type zerologLogger struct {
	logger zerolog.Logger
}

// New creates a Logger writing JSON entries to w, tagged with the service
// name and filtered by level.
//
// Parameters:
//   - w: Destination writer (e.g. os.Stdout or a log file)
//   - serviceName: Name of the service, added as a field to every entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger backed by zerolog
func New(w io.Writer, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: zerolog.New(w).With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewConsole creates a Logger writing human-readable entries to stdout.
// Intended for interactive use; production deployments should prefer New
// with a JSON destination.
//
// Parameters:
//   - serviceName: Name of the service, added as a field to every entry
//   - level: Minimum level to log
//
// Returns:
//   - A Logger backed by a zerolog ConsoleWriter
func NewConsole(serviceName string, level zerolog.Level) Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stdout}, serviceName, level)
}

// Nop returns a Logger that discards all entries. Useful in tests.
//
// Returns:
//   - A Logger that never writes
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
