// Package logging provides the leveled, key/value logger used by the interface
// server. Every server instance owns its own Logger so that verbosity is part of
// the server's configuration rather than process-wide state.
package logging

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a log level.
type Level int

const (
	// LevelTrace is for per-packet and per-frame detail.
	LevelTrace Level = iota
	// LevelDebug is for verbose debugging information.
	LevelDebug
	// LevelInfo is for lifecycle messages.
	LevelInfo
	// LevelWarn is for recoverable errors and warnings.
	LevelWarn
	// LevelError is for significant errors that may impact functionality.
	LevelError
	// LevelCritical is for failures that end the server.
	LevelCritical
	// LevelOff silences the logger entirely.
	LevelOff
)

var levelNames = map[Level]string{
	LevelTrace:    "TRACE",
	LevelDebug:    "DEBUG",
	LevelInfo:     "INFO",
	LevelWarn:     "WARN",
	LevelError:    "ERROR",
	LevelCritical: "CRITICAL",
	LevelOff:      "OFF",
}

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel converts a level name to a Level. It accepts the names
// trace, debug, info, warn, warning, err, error, critical and off.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "err", "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	case "off", "none":
		return LevelOff, nil
	}
	return LevelOff, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// sink is shared between a logger and the children derived from it, so that
// SetLevel on the parent also applies to every child.
type sink struct {
	mu       sync.RWMutex
	minLevel Level
	output   *log.Logger
}

// Logger provides structured logging with context.
type Logger struct {
	sink   *sink
	fields map[string]interface{}
}

// New creates a new Logger writing to stderr at info level.
func New() *Logger {
	return &Logger{
		sink: &sink{
			minLevel: LevelInfo,
			output:   log.New(os.Stderr, "", log.LstdFlags),
		},
		fields: make(map[string]interface{}),
	}
}

// Discard returns a Logger that never writes anything.
func Discard() *Logger {
	l := New()
	l.SetLevel(LevelOff)
	return l
}

// SetLevel sets the minimum log level for this logger and all its children.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.minLevel
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level Level) bool {
	min := l.Level()
	return min != LevelOff && level >= min
}

// SetOutput sets the output logger.
func (l *Logger) SetOutput(output *log.Logger) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = output
}

// With returns a new Logger with an additional context field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new Logger with multiple additional context fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		sink:   l.sink,
		fields: newFields,
	}
}

// log writes a log entry at the given level.
func (l *Logger) log(level Level, msg string, keyVals ...interface{}) {
	l.sink.mu.RLock()
	minLevel := l.sink.minLevel
	output := l.sink.output
	l.sink.mu.RUnlock()

	if minLevel == LevelOff || level < minLevel {
		return
	}

	var sb strings.Builder
	sb.WriteString(levelNames[level])
	sb.WriteString(": ")
	sb.WriteString(msg)

	allFields := make(map[string]interface{}, len(l.fields)+len(keyVals)/2)
	for k, v := range l.fields {
		allFields[k] = v
	}
	for i := 0; i+1 < len(keyVals); i += 2 {
		if key, ok := keyVals[i].(string); ok {
			allFields[key] = keyVals[i+1]
		}
	}

	if len(allFields) > 0 {
		keys := make([]string, 0, len(allFields))
		for k := range allFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(formatValue(allFields[k]))
		}
	}

	output.Print(sb.String())
}

// formatValue formats a value for logging.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprint(v)
	}
}

// Trace logs at trace level.
func (l *Logger) Trace(msg string, keyVals ...interface{}) {
	l.log(LevelTrace, msg, keyVals...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyVals ...interface{}) {
	l.log(LevelDebug, msg, keyVals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyVals ...interface{}) {
	l.log(LevelInfo, msg, keyVals...)
}

// Warn logs at warn level (for recoverable errors).
func (l *Logger) Warn(msg string, keyVals ...interface{}) {
	l.log(LevelWarn, msg, keyVals...)
}

// Error logs at error level (for significant errors).
func (l *Logger) Error(msg string, keyVals ...interface{}) {
	l.log(LevelError, msg, keyVals...)
}

// Critical logs at critical level.
func (l *Logger) Critical(msg string, keyVals ...interface{}) {
	l.log(LevelCritical, msg, keyVals...)
}
