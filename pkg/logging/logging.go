// Package logging defines the small leveled, structured logger used across
// cacheboot. Adapters for zap and logrus live in subpackages.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// LogLevel defines the severity level for logging
type LogLevel int

const (
	// LogLevelDebug enables all log messages including detailed debugging
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables informational messages and above
	LogLevelInfo

	// LogLevelWarn enables warning messages and above
	LogLevelWarn

	// LogLevelError enables only error messages
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "INFO", "":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR":
		return LogLevelError, nil
	case "NONE", "OFF":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F is a convenience function to create a logging field
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger implements Logger using Go's standard log package
type DefaultLogger struct {
	level  LogLevel
	logger *log.Logger
	fields []Field
}

// NewDefaultLogger creates a logger writing to stderr at the given level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger creates a logger writing to w at the given level
func NewWriterLogger(w io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		logger: log.New(w, "[CACHEBOOT] ", log.LstdFlags|log.LUTC),
	}
}

// Debug logs a debug message
func (dl *DefaultLogger) Debug(msg string, fields ...Field) {
	if dl.level <= LogLevelDebug {
		dl.log(LogLevelDebug, msg, fields...)
	}
}

// Info logs an info message
func (dl *DefaultLogger) Info(msg string, fields ...Field) {
	if dl.level <= LogLevelInfo {
		dl.log(LogLevelInfo, msg, fields...)
	}
}

// Warn logs a warning message
func (dl *DefaultLogger) Warn(msg string, fields ...Field) {
	if dl.level <= LogLevelWarn {
		dl.log(LogLevelWarn, msg, fields...)
	}
}

// Error logs an error message
func (dl *DefaultLogger) Error(msg string, fields ...Field) {
	if dl.level <= LogLevelError {
		dl.log(LogLevelError, msg, fields...)
	}
}

// With creates a new logger with additional fields
func (dl *DefaultLogger) With(fields ...Field) Logger {
	newFields := make([]Field, len(dl.fields)+len(fields))
	copy(newFields, dl.fields)
	copy(newFields[len(dl.fields):], fields)

	return &DefaultLogger{
		level:  dl.level,
		logger: dl.logger,
		fields: newFields,
	}
}

func (dl *DefaultLogger) log(level LogLevel, msg string, fields ...Field) {
	all := make([]Field, 0, len(dl.fields)+len(fields))
	all = append(all, dl.fields...)
	all = append(all, fields...)

	if len(all) == 0 {
		dl.logger.Printf("[%s] %s", level, msg)
		return
	}

	parts := make([]string, 0, len(all))
	for _, f := range all {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	dl.logger.Printf("[%s] %s | %s", level, msg, strings.Join(parts, " "))
}

// NoOpLogger is a logger that does nothing
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards all messages
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (nol *NoOpLogger) Debug(string, ...Field) {}
func (nol *NoOpLogger) Info(string, ...Field)  {}
func (nol *NoOpLogger) Warn(string, ...Field)  {}
func (nol *NoOpLogger) Error(string, ...Field) {}
func (nol *NoOpLogger) With(...Field) Logger   { return nol }

// OrNoOp returns l, or a NoOpLogger when l is nil
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}

var (
	_ Logger = (*DefaultLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
)
