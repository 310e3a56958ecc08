package logctx

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, when set, receives a copy of every record and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, xerrors.Errorf("invalid log level: %s", level)
	}
}

// NewLogger builds the process logger. The returned closer flushes and
// closes the rotated log file, if any.
func NewLogger(stdout io.Writer, cfg LoggerConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	var out io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(stdout, rotated)
		closer = rotated
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
