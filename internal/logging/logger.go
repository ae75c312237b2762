// Package logging builds the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger for the given level and format.
// Formats: "json" (default), "text". Levels: "debug", "info" (default),
// "warn", "error". When filePath is non-empty, logs are written to
// stdout and the file (io.MultiWriter); the returned io.Closer must be
// closed on shutdown to flush and close that file. With an empty
// filePath the closer is a no-op.
func NewLogger(level, format, filePath string) (*slog.Logger, io.Closer) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(strings.NewReader(""))

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", filePath, err)
		} else {
			w = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), closer
}

// ForComponent returns a child logger tagged with a "component" key and
// any additional key/value attributes. Every socket worker, request
// worker, and the stats reporter identify themselves in structured log
// output this way; centralizing it here keeps the attribute name and
// ordering consistent instead of each caller hand-rolling its own
// logger.With("component", ...) call.
func ForComponent(logger *slog.Logger, component string, args ...any) *slog.Logger {
	return logger.With(append([]any{"component", component}, args...)...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
