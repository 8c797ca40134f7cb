// Package logging builds the structured logger used for diagnostics. Logs
// go to stderr or a rotating file, never to stdout.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dskow/newtoken/internal/config"
)

// ParseLevel maps a configured level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stderr, or to the configured file. The
// returned Closer releases the file and must be called before exit.
func New(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.ToFile() {
		rw, err := NewRotatingWriter(cfg.Output, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		out, closer = rw, rw
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h), closer, nil
}

// Bootstrap returns the logger used before configuration is loaded.
func Bootstrap(stderr io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
