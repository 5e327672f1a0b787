// Package logger configures the process-wide structured logger: text
// records on stderr mirrored into a rotating drama.log file.
package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the process logger.
type Options struct {
	// Debug lowers the level to debug.
	Debug bool

	// FilePath is the rotating log file. Empty disables the file handler.
	FilePath string
}

// New builds the process logger.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if opts.FilePath != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    1, // megabytes
			MaxBackups: 1,
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithTask returns a child logger tagged with task identity.
func WithTask(logger *slog.Logger, taskID, taskName string) *slog.Logger {
	return logger.With("task_id", taskID, "task", taskName)
}
