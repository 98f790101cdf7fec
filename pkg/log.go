package pkg

import (
	"log/slog"
	"os"
	"sync"
)

// Component identifies the subsystem emitting a log record, for filtering
// and for attributing records when several layers log around the same
// event (e.g. a BD access refused while the control engine is stalling).
type Component string

// Core component identifiers.
const (
	ComponentHAL     Component = "hal"
	ComponentBD      Component = "bd"
	ComponentControl Component = "ctl"
	ComponentDevice  Component = "device"
)

var (
	// defaultLogger is the logger used by LogDebug/LogWarn/etc. Bare-metal
	// integrators that route logging through a UART instead of stderr
	// should call SetLogger with a slog.Logger wrapping their own
	// io.Writer; the core never formats or buffers log output itself.
	defaultLogger *slog.Logger

	logLevel = new(slog.LevelVar)
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum level for subsequent LogDebug/LogWarn/etc calls.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// SetLogger replaces the default logger, e.g. to route output to an
// external collaborator such as a UART debug sink instead of stderr.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	defaultLogger = logger
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return defaultLogger
}

// LogDebug logs a debug-level record tagged with its originating component.
func LogDebug(component Component, msg string, args ...any) {
	logger().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning-level record tagged with its originating component.
func LogWarn(component Component, msg string, args ...any) {
	logger().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error-level record tagged with its originating component.
func LogError(component Component, msg string, args ...any) {
	logger().Error(msg, append([]any{"component", string(component)}, args...)...)
}
