// Package logging builds the application logger: slog structured output
// over a size/age rotated file under the user's logs directory, with an
// optional mirror to stderr for interactive runs.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures [New].
type Options struct {
	// Dir is the directory for rotated log files; created if missing.
	Dir string

	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Console mirrors log output to stderr as text for interactive runs.
	Console bool
}

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New creates the application logger. The file sink rotates at 20 MB,
// keeps a week of old files and compresses them. The returned closer
// flushes and closes the file sink.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	lvl, err := levelFromString(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "trainer.log"),
		MaxSize:    20, // MB
		MaxBackups: 7,
		MaxAge:     7, // days
		Compress:   true,
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(rotated, handlerOpts)
	if opts.Console {
		handler = teeHandler{
			file:    handler,
			console: slog.NewTextHandler(os.Stderr, handlerOpts),
		}
	}
	return slog.New(handler), rotated, nil
}

// teeHandler fans records out to the file and console handlers.
type teeHandler struct {
	file    slog.Handler
	console slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return t.file.Enabled(ctx, lvl) || t.console.Enabled(ctx, lvl)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	if t.file.Enabled(ctx, rec.Level) {
		errs = append(errs, t.file.Handle(ctx, rec.Clone()))
	}
	if t.console.Enabled(ctx, rec.Level) {
		errs = append(errs, t.console.Handle(ctx, rec))
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{file: t.file.WithAttrs(attrs), console: t.console.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{file: t.file.WithGroup(name), console: t.console.WithGroup(name)}
}
