// Package log provides JSON-lines structured logging for glint.
//
// The launcher owns the terminal while it runs, so logs go to a file under
// the XDG state directory rather than stderr. Every line is one JSON object:
//
//	{"ts":"2024-01-15T10:30:00Z","level":"info","msg":"backend discovered","app_id":"org.gnome.Nautilus"}
package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
		Debug:  false,
	}
}

// New creates a new JSON-lines structured logger.
//
// Log levels:
//   - debug: verbose per-query tracing (enabled via GLINT_DEBUG=1)
//   - info: startup, shutdown, discovery summary
//   - warn: non-fatal issues (skipped descriptors, backend query errors)
//   - error: failures requiring attention
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Rename "time" to "ts" to keep lines compact
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	return slog.New(slog.NewJSONHandler(output, opts))
}

// NewFromEnv creates a logger configured from environment variables.
// GLINT_DEBUG=1 enables debug logging.
func NewFromEnv(output io.Writer) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Output = output
	if os.Getenv("GLINT_DEBUG") == "1" {
		cfg.Debug = true
	}
	return New(cfg)
}

// OpenFile opens (appending, creating as needed) the log file at path,
// creating parent directories. The caller owns the returned file.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Discard returns a logger that drops everything. Useful as a default for
// components whose callers did not supply a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
