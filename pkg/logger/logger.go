// Package logger configures slog for the schema tools and carries request
// and import identity through contexts into log records.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type requestIDKey struct{}

type importKey struct{}

type importInfo struct {
	id  string
	uri string
}

// Setup installs the process-wide slog handler. Logs go to stderr so that
// CLI output on stdout stays machine readable.
func Setup(level string, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w. format is "json" or anything else for
// text.
func New(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithImport tags ctx with the id and source uri of the import it belongs to.
func WithImport(ctx context.Context, importID, uri string) context.Context {
	return context.WithValue(ctx, importKey{}, importInfo{id: importID, uri: uri})
}

// FromContext returns the default logger with whatever request and import
// identity ctx carries.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		l = l.With("request_id", id)
	}
	if imp, ok := ctx.Value(importKey{}).(importInfo); ok {
		l = l.With("import_id", imp.id, "uri", imp.uri)
	}
	return l
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
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
