package logging

import (
	"log/slog"
	"sync/atomic"
)

// Logger is the narrow logging interface accepted by components that should not
// depend on slog directly (e.g. the vector store connection manager).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// SlogAdapter adapts an slog.Logger to the Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Debug logs a debug message with alternating key-value pairs.
func (a *SlogAdapter) Debug(msg string, args ...interface{}) {
	a.logger.Debug(msg, args...)
}

// Info logs an info message with alternating key-value pairs.
func (a *SlogAdapter) Info(msg string, args ...interface{}) {
	a.logger.Info(msg, args...)
}

// Warn logs a warning message with alternating key-value pairs.
func (a *SlogAdapter) Warn(msg string, args ...interface{}) {
	a.logger.Warn(msg, args...)
}

// Error logs an error message with alternating key-value pairs.
func (a *SlogAdapter) Error(msg string, args ...interface{}) {
	a.logger.Error(msg, args...)
}

// Logger returns the underlying slog.Logger.
func (a *SlogAdapter) Logger() *slog.Logger {
	return a.logger
}

// DefaultLogger returns a Logger using the default slog.Logger.
func DefaultLogger() *SlogAdapter {
	return NewSlogAdapter(slog.Default())
}

// OnceFlag suppresses repeated warnings for the same ongoing condition, such as
// an unreachable backend. The first Warn after a Reset is logged, the rest are not.
type OnceFlag struct {
	fired atomic.Bool
}

// Warn logs msg through logger unless the flag has already fired.
// Returns true if the message was logged.
func (o *OnceFlag) Warn(logger Logger, msg string, args ...interface{}) bool {
	if !o.fired.CompareAndSwap(false, true) {
		return false
	}
	logger.Warn(msg, args...)
	return true
}

// Reset re-arms the flag so the next Warn is logged again.
func (o *OnceFlag) Reset() {
	o.fired.Store(false)
}

// Fired reports whether a warning has been logged since the last Reset.
func (o *OnceFlag) Fired() bool {
	return o.fired.Load()
}
