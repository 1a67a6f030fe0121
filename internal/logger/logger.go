// Package logger builds the file-backed zap logger. The TUI owns the
// terminal, so nothing is written to stderr while it runs.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// Options select the log level and file.
type Options struct {
	Level string
	Path  string
}

// New returns a JSON logger appending to opts.Path. An empty path or the
// level "off" yields a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	level := strings.TrimSpace(strings.ToLower(opts.Level))
	if level == "" {
		level = DefaultLevel
	}
	if level == "off" || strings.TrimSpace(opts.Path) == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", opts.Level)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{opts.Path}
	cfg.ErrorOutputPaths = []string{opts.Path}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	return cfg.Build()
}
