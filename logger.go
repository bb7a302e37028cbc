package connector

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// scopedLogger prepends a fixed set of key-value pairs to every record,
// so that lines from different connectors can be told apart.
type scopedLogger struct {
	next  Logger
	attrs []any
}

func withAttrs(l Logger, attrs ...any) Logger {
	if s, ok := l.(*scopedLogger); ok {
		merged := make([]any, 0, len(s.attrs)+len(attrs))
		merged = append(merged, s.attrs...)
		merged = append(merged, attrs...)
		return &scopedLogger{next: s.next, attrs: merged}
	}
	return &scopedLogger{next: l, attrs: attrs}
}

func (s *scopedLogger) args(args []any) []any {
	out := make([]any, 0, len(s.attrs)+len(args))
	out = append(out, s.attrs...)
	return append(out, args...)
}

func (s *scopedLogger) Debug(msg string, args ...any) { s.next.Debug(msg, s.args(args)...) }
func (s *scopedLogger) Info(msg string, args ...any)  { s.next.Info(msg, s.args(args)...) }
func (s *scopedLogger) Warn(msg string, args ...any)  { s.next.Warn(msg, s.args(args)...) }
func (s *scopedLogger) Error(msg string, args ...any) { s.next.Error(msg, s.args(args)...) }
