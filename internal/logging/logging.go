// Package logging builds the process logger and carries request scoped loggers in contexts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the level, encoding and optional rotating file sink.
type Config struct {
	Level  string
	Format string
	File   FileConfig
	// Output overrides stdout; tests use it to capture records.
	Output io.Writer
}

// FileConfig configures the rotating file sink. It is disabled when Path is empty.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel maps debug, info, warn and error to slog levels. The empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
}

// New creates a logger according to cfg. The returned closer releases the file sink and is
// never nil.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nopCloser{}, err
	}

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.File.Path); path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positiveOr(cfg.File.MaxSizeMB, 100),
			MaxBackups: positiveOr(cfg.File.MaxBackups, 5),
			MaxAge:     positiveOr(cfg.File.MaxAgeDays, 30),
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, nopCloser{}, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
