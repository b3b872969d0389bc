package logger

import (
	"io"
	"log/slog"
	"os"
)

// Log is the process-wide logger. It writes text to stderr until Setup runs.
var Log = slog.Default()

// New builds the handler for an environment: JSON in production, text
// elsewhere, with debug records only in development.
func New(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "development":
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs the logger for env on stdout and as the slog default.
func Setup(env string) {
	Log = New(env, os.Stdout)
	slog.SetDefault(Log)
}

func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}
