package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(level)
	logger.SetOutput(log.New(&buf, "", 0))
	return logger, &buf
}

func emit(logger *Logger, level Level, msg string) {
	switch level {
	case LevelTrace:
		logger.Trace(msg)
	case LevelDebug:
		logger.Debug(msg)
	case LevelInfo:
		logger.Info(msg)
	case LevelWarn:
		logger.Warn(msg)
	case LevelError:
		logger.Error(msg)
	case LevelCritical:
		logger.Critical(msg)
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"trace allowed at trace", LevelTrace, LevelTrace, true},
		{"trace blocked at debug", LevelDebug, LevelTrace, false},
		{"debug allowed at debug", LevelDebug, LevelDebug, true},
		{"info allowed at debug", LevelDebug, LevelInfo, true},
		{"debug blocked at info", LevelInfo, LevelDebug, false},
		{"warn allowed at info", LevelInfo, LevelWarn, true},
		{"info blocked at warn", LevelWarn, LevelInfo, false},
		{"error allowed at warn", LevelWarn, LevelError, true},
		{"warn blocked at error", LevelError, LevelWarn, false},
		{"critical allowed at error", LevelError, LevelCritical, true},
		{"error blocked at critical", LevelCritical, LevelError, false},
		{"critical blocked when off", LevelOff, LevelCritical, false},
		{"trace blocked when off", LevelOff, LevelTrace, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger(tt.minLevel)
			emit(logger, tt.logLevel, "test message")

			if tt.shouldLog {
				assert.Contains(t, buf.String(), "test message")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"err", LevelError},
		{"error", LevelError},
		{"critical", LevelCritical},
		{" off ", LevelOff},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestLoggerChildSharesLevel(t *testing.T) {
	logger, buf := newBufferedLogger(LevelInfo)
	child := logger.With("component", "hub")

	logger.SetLevel(LevelOff)
	child.Error("silenced")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	child.Debug("audible")
	assert.Contains(t, buf.String(), "component=hub")
	assert.True(t, child.Enabled(LevelDebug))
	assert.False(t, child.Enabled(LevelTrace))
}

func TestLoggerWithFields(t *testing.T) {
	logger, buf := newBufferedLogger(LevelDebug)

	childLogger := logger.WithFields(map[string]interface{}{
		"viewer": "abc123",
		"remote": "127.0.0.1:5000",
	})
	childLogger.Error("write failed")

	output := buf.String()
	assert.Contains(t, output, "ERROR: write failed")
	assert.Contains(t, output, "viewer=abc123")
	assert.Contains(t, output, "remote=127.0.0.1:5000")
	assert.Less(t, strings.Index(output, "remote="), strings.Index(output, "viewer="), "fields are sorted")
}

func TestLoggerInlineKeyVals(t *testing.T) {
	logger, buf := newBufferedLogger(LevelDebug)

	logger.Warn("dropped frame", "error", errors.New("timeout"), "seq", 3)

	output := buf.String()
	assert.Contains(t, output, "WARN: dropped frame")
	assert.Contains(t, output, "error=\"timeout\"")
	assert.Contains(t, output, "seq=3")
}

func TestLoggerOriginalUnmodified(t *testing.T) {
	logger, buf := newBufferedLogger(LevelDebug)

	_ = logger.With("viewer", "abc123")
	logger.Info("original logger")

	assert.NotContains(t, buf.String(), "viewer=abc123")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"simple string", "hello", "hello"},
		{"string with spaces", "hello world", `"hello world"`},
		{"integer", 42, "42"},
		{"error", errors.New("oops"), `"oops"`},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.input))
		})
	}
}

func TestLevelNames(t *testing.T) {
	for _, level := range []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical} {
		t.Run(level.String(), func(t *testing.T) {
			logger, buf := newBufferedLogger(LevelTrace)
			emit(logger, level, "test")
			assert.True(t, strings.HasPrefix(buf.String(), level.String()+":"))
		})
	}
	assert.Equal(t, "OFF", LevelOff.String())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(LevelCritical))
}
