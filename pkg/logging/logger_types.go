// Package logging provides the structured JSON logging used across
// the solver pipeline. One line per entry, a small typed field
// vocabulary, no external state.
package logging

import (
	"io"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	// DebugLevel carries per-iteration solver detail; off in
	// production.
	DebugLevel Level = iota
	// InfoLevel is the default.
	InfoLevel
	// WarnLevel marks degraded results that need no immediate action.
	WarnLevel
	// ErrorLevel marks failures; a clean run emits none.
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel reads a level name, case-insensitively. Unknown names
// fall back to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DebugLevel
	case "INFO", "info":
		return InfoLevel
	case "WARN", "warn", "WARNING", "warning":
		return WarnLevel
	case "ERROR", "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Field is one key-value pair on a log entry. Use the constructors in
// this package rather than building fields by hand, so key names stay
// consistent across the codebase.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging interface the rest of the module depends on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger with the given fields bound.
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// JSONLogger writes one JSON object per entry. Safe for concurrent
// use.
type JSONLogger struct {
	writer io.Writer
	level  Level
	fields []Field
	mu     sync.Mutex
}

// LogEntry is the wire shape of one logged line.
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// NopLogger discards everything; the solvers use it in tests.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (n NopLogger) With(fields ...Field) Logger     { return n }
func (NopLogger) SetLevel(level Level)              {}
func (NopLogger) GetLevel() Level                   { return InfoLevel }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation measures one operation from StartTimer to End.
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}
