// Package logger provides the structured logger shared by the compiler,
// loader and CLI.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

var defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Level is a logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration.
type Config struct {
	Level Level

	// Format is "text", "json" or "auto". Auto picks text on a terminal
	// and json otherwise.
	Format string

	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs warnings and errors to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelWarn,
		Format: "auto",
		Output: os.Stderr,
	}
}

// Init replaces the package logger.
func Init(cfg Config) {
	defaultLogger = New(cfg)
}

// New builds a logger without installing it.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	format := cfg.Format
	if format == "auto" || format == "" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return defaultLogger.With(args...)
}

// Component returns the logger for one package of the pipeline.
func Component(name string) *slog.Logger {
	return defaultLogger.With("component", name)
}

// LogStep logs one pipeline step of a unit at debug level.
func LogStep(l *slog.Logger, unit, step string, args ...any) {
	l.Debug(step, append([]any{"unit", unit}, args...)...)
}
