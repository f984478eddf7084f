// Package logging sets up the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	// LogFile, if set, routes log output through a rotating writer
	// instead of stdout.
	LogFile string
	Level   slog.Level
}

// Init installs the process-wide slog.Default logger and returns the
// underlying writer so callers can close it on shutdown (the rotating
// writer holds an open file handle).
func Init(opts Options) io.Writer {
	var w io.Writer = os.Stdout
	if opts.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	slog.SetDefault(slog.New(handler))
	return w
}

// WithFeed returns a logger with the feed_id field attached, the
// convention used throughout the pipeline and store layers.
func WithFeed(feedID string) *slog.Logger {
	return slog.Default().With("feed_id", feedID)
}

// WithDownload returns a logger with feed_id/download_id attached.
func WithDownload(feedID, downloadID string) *slog.Logger {
	return slog.Default().With("feed_id", feedID, "download_id", downloadID)
}
