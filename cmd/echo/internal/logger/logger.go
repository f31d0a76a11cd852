package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Options controls where the global logger writes and at which level.
type Options struct {
	Output io.Writer
	Debug  bool
	// Quiet raises the minimum level to Warn. Ignored when Debug is set.
	Quiet bool
}

// Init initializes the global logger. Only the first call has any effect.
func Init(opts Options) {
	once.Do(func() {
		defaultLogger = build(opts)
		slog.SetDefault(defaultLogger)
	})
}

// New returns a standalone logger writing text records to w.
// Used to hand components their own sink, e.g. a buffer in tests.
func New(w io.Writer, debug bool) *slog.Logger {
	return build(Options{Output: w, Debug: debug})
}

func build(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := slog.LevelInfo
	switch {
	case opts.Debug:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
		// Add source file information if in debug mode
		AddSource: level == slog.LevelDebug,
	})
	return slog.New(handler)
}

// Default returns the global logger, initializing it with defaults if needed.
func Default() *slog.Logger {
	if defaultLogger == nil {
		Init(Options{})
	}
	return defaultLogger
}

// Or returns l, or the global logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Default()
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}
