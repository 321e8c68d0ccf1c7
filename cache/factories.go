package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug logs a debug message (no-op).
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info logs an info message (no-op).
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn logs a warning message (no-op).
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error logs an error message (no-op).
func (n *NoOpLogger) Error(msg string, args ...any) {}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// ConsoleLogger writes prefixed log lines to stdout.
type ConsoleLogger struct {
	prefix string
}

func (cl *ConsoleLogger) log(level, msg string, args []any) {
	fmt.Printf("[%s] %s: %s", level, cl.prefix, msg)
	if len(args) > 0 {
		fmt.Printf(" %v", args)
	}
	fmt.Println()
}

// Debug logs a debug message to console.
func (cl *ConsoleLogger) Debug(msg string, args ...any) { cl.log("DEBUG", msg, args) }

// Info logs an info message to console.
func (cl *ConsoleLogger) Info(msg string, args ...any) { cl.log("INFO", msg, args) }

// Warn logs a warning message to console.
func (cl *ConsoleLogger) Warn(msg string, args ...any) { cl.log("WARN", msg, args) }

// Error logs an error message to console.
func (cl *ConsoleLogger) Error(msg string, args ...any) { cl.log("ERROR", msg, args) }

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(prefix string) Logger {
	return &ConsoleLogger{prefix: prefix}
}

// SlogLogger adapts a *slog.Logger to the Logger interface, so hosts using
// the standard structured logger can plug it in without a shim.
type SlogLogger struct {
	logger *slog.Logger
}

// Debug logs a debug message via slog.
func (sl *SlogLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }

// Info logs an info message via slog.
func (sl *SlogLogger) Info(msg string, args ...any) { sl.logger.Info(msg, args...) }

// Warn logs a warning message via slog.
func (sl *SlogLogger) Warn(msg string, args ...any) { sl.logger.Warn(msg, args...) }

// Error logs an error message via slog.
func (sl *SlogLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

// NewSlogLogger creates a Logger backed by the given slog logger, or
// slog.Default() when nil.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// JSONMarshaller is a marshaller that uses the standard JSON library.
type JSONMarshaller struct{}

// Marshal serializes a value to JSON.
func (jm *JSONMarshaller) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes a value from JSON.
func (jm *JSONMarshaller) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewJSONMarshaller creates a new JSON marshaller.
func NewJSONMarshaller() Marshaller {
	return &JSONMarshaller{}
}
