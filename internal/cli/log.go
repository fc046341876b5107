package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/safehome/safehome/internal/logging"
	"github.com/safehome/safehome/internal/server"
	"github.com/safehome/safehome/internal/storage"
)

// consoleHandler writes JSON records at level, or text records at debug
// level when verbose is set.
func consoleHandler(w io.Writer, verbose bool, level slog.Level) slog.Handler {
	if verbose {
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       slog.LevelDebug,
			ReplaceAttr: logging.ReplaceLevel,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logging.ReplaceLevel,
	})
}

// serviceLogger builds the logger of a running appliance: the console, the
// logs table and, when configured, the log file. The returned closer
// releases the log file.
func serviceLogger(console io.Writer, verbose bool, cfg server.Config, logs storage.LogStore) (*slog.Logger, io.Closer, error) {
	level := logging.SlogLevel(storage.ParseLevel(cfg.LogLevel))

	handlers := []slog.Handler{
		consoleHandler(console, verbose, level),
		logging.NewDBHandler(logs, level),
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, logging.NewLineHandler(f, level))
		closer = f
	}

	return slog.New(logging.NewFanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
