package oteladapters

import (
	"log/slog"

	"github.com/bookhaven/book-lending-go/lending/postgresengine"
)

// SlogLogger implements postgresengine.Logger on a plain slog.Logger,
// without context propagation. Prefer SlogBridgeLogger when traces are
// in play.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a logger on the given slog.Logger. A nil logger
// falls back to slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogLogger{logger: logger}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

var _ postgresengine.Logger = (*SlogLogger)(nil)
