// Package logger provides the leveled, key/value logging interface shared by
// every notifyrelay component. Components accept a Logger and fall back to
// Discard when none is configured.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// Silent suppresses all log output.
	Silent LogLevel = iota + 1
	// Error only logs error messages.
	Error
	// Warn logs warnings and errors.
	Warn
	// Info logs informational messages, warnings, and errors.
	Info
	// Debug logs all messages including debug information.
	Debug
)

// ParseLevel maps a textual level ("debug", "info", "warn", "error", "silent")
// to a LogLevel. Unknown values fall back to Info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off", "none":
		return Silent
	case "error":
		return Error
	case "warn", "warning":
		return Warn
	case "debug":
		return Debug
	default:
		return Info
	}
}

// Logger is the interface that wraps the basic logging methods.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	// LogMode sets the log level and returns a new logger instance.
	LogMode(level LogLevel) Logger
	// Info logs an informational message with structured key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning message with structured key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error message with structured key-value pairs.
	Error(msg string, args ...any)
	// Debug logs a debug message with structured key-value pairs.
	Debug(msg string, args ...any)
}

// StandardLogger writes plain-text lines through the standard log package.
type StandardLogger struct {
	logger *log.Logger
	level  LogLevel
	prefix string
}

// NewStandardLogger creates a new logger with the given writer and configuration.
func NewStandardLogger(writer *log.Logger, level LogLevel, prefix string) Logger {
	return &StandardLogger{
		logger: writer,
		level:  level,
		prefix: prefix,
	}
}

// LogMode sets the log level and returns a new logger instance.
func (l *StandardLogger) LogMode(level LogLevel) Logger {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

// Info logs an informational message.
func (l *StandardLogger) Info(msg string, args ...any) {
	if l.level >= Info {
		l.logger.Print(l.formatLog("INFO", msg, args...))
	}
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(msg string, args ...any) {
	if l.level >= Warn {
		l.logger.Print(l.formatLog("WARN", msg, args...))
	}
}

// Error logs an error message.
func (l *StandardLogger) Error(msg string, args ...any) {
	if l.level >= Error {
		l.logger.Print(l.formatLog("ERROR", msg, args...))
	}
}

// Debug logs a debug message.
func (l *StandardLogger) Debug(msg string, args ...any) {
	if l.level >= Debug {
		l.logger.Print(l.formatLog("DEBUG", msg, args...))
	}
}

func (l *StandardLogger) formatLog(level, msg string, args ...any) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		var val any = "(no value)"
		if i+1 < len(args) {
			val = args[i+1]
		}
		fmt.Fprintf(&b, " %v=%v", args[i], val)
	}
	return b.String()
}

// SlogLogger adapts a *slog.Logger to the Logger interface. The LogLevel gate
// is applied before records reach the slog handler.
type SlogLogger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger, level LogLevel) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l, level: level}
}

// NewJSON returns a slog-backed logger emitting JSON lines to w.
func NewJSON(w io.Writer, level LogLevel) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h), level)
}

// NewText returns a slog-backed logger emitting logfmt-style text to w.
func NewText(w io.Writer, level LogLevel) Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h), level)
}

// LogMode sets the log level and returns a new logger instance.
func (s *SlogLogger) LogMode(level LogLevel) Logger {
	return &SlogLogger{logger: s.logger, level: level}
}

// Info logs an informational message.
func (s *SlogLogger) Info(msg string, args ...any) {
	if s.level >= Info {
		s.logger.Log(context.Background(), slog.LevelInfo, msg, args...)
	}
}

// Warn logs a warning message.
func (s *SlogLogger) Warn(msg string, args ...any) {
	if s.level >= Warn {
		s.logger.Log(context.Background(), slog.LevelWarn, msg, args...)
	}
}

// Error logs an error message.
func (s *SlogLogger) Error(msg string, args ...any) {
	if s.level >= Error {
		s.logger.Log(context.Background(), slog.LevelError, msg, args...)
	}
}

// Debug logs a debug message.
func (s *SlogLogger) Debug(msg string, args ...any) {
	if s.level >= Debug {
		s.logger.Log(context.Background(), slog.LevelDebug, msg, args...)
	}
}

type discardLogger struct{}

func (d *discardLogger) LogMode(LogLevel) Logger { return d }
func (d *discardLogger) Info(string, ...any)     {}
func (d *discardLogger) Warn(string, ...any)     {}
func (d *discardLogger) Error(string, ...any)    {}
func (d *discardLogger) Debug(string, ...any)    {}

// Discard is a logger that discards all output.
var Discard Logger = &discardLogger{}

// New returns a default logger that writes to stdout.
func New() Logger {
	return NewStandardLogger(log.New(os.Stdout, "", log.LstdFlags), Warn, "[notifyrelay]")
}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}
