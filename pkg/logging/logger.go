package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// NewJSONLogger returns a logger writing line-delimited JSON entries
// to w, dropping everything below level.
func NewJSONLogger(w io.Writer, level Level) *JSONLogger {
	return &JSONLogger{writer: w, level: level}
}

// NewDefaultLogger returns a JSON logger on stdout at INFO.
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stdout, InfoLevel)
}

func (l *JSONLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Bound fields first, call-site fields override on key clash.
	fieldMap := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		fieldMap[f.Key] = f.Value
	}
	for _, f := range fields {
		fieldMap[f.Key] = f.Value
	}

	entry := LogEntry{
		Time:    time.Now().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if len(fieldMap) > 0 {
		entry.Fields = fieldMap
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// A field value that cannot marshal must not lose the line.
		fmt.Fprintf(l.writer, "[ERROR] failed to marshal log entry: %v\n", err)
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// With returns a child logger carrying the given fields on every
// entry. The parent is unchanged.
func (l *JSONLogger) With(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	bound := make([]Field, len(l.fields)+len(fields))
	copy(bound, l.fields)
	copy(bound[len(l.fields):], fields)
	return &JSONLogger{writer: l.writer, level: l.level, fields: bound}
}

// SetLevel sets the minimum level that produces output.
func (l *JSONLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current minimum level.
func (l *JSONLogger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

var (
	defaultLogger Logger
	once          sync.Once
)

// DefaultLogger returns the process-wide logger: JSON on stdout, at
// the level named by POWERCALC_LOG_LEVEL or INFO.
func DefaultLogger() Logger {
	once.Do(func() {
		level := InfoLevel
		if s := os.Getenv("POWERCALC_LOG_LEVEL"); s != "" {
			level = ParseLevel(s)
		}
		defaultLogger = NewJSONLogger(os.Stdout, level)
	})
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// Package-level helpers on the default logger.

func Debug(msg string, fields ...Field) { DefaultLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { DefaultLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { DefaultLogger().Warn(msg, fields...) }

// ErrorLog logs at error level. Named apart from the Error field
// constructor.
func ErrorLog(msg string, fields ...Field) { DefaultLogger().Error(msg, fields...) }

// With returns a child of the default logger.
func With(fields ...Field) Logger { return DefaultLogger().With(fields...) }

// StartTimer begins timing an operation; the returned value logs the
// elapsed time when ended.
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// Elapsed returns the time since the operation started.
func (t *TimedOperation) Elapsed() time.Duration {
	return time.Since(t.start)
}

// End logs the operation at info level with its duration.
func (t *TimedOperation) End() {
	t.logger.Info(t.msg, append(t.fields, Latency(t.Elapsed()))...)
}

// EndError logs the operation at error level with the failure and
// the duration.
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, append(t.fields, Latency(t.Elapsed()), Error(err))...)
}
