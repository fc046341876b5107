package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LineHandler writes records in the SafeHome log file format:
//
//	[LEVEL] [2006-01-02 15:04:05] [file.go:42] [Function] | message key=value
type LineHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	state attrState
}

// NewLineHandler creates a LineHandler writing to w. A nil level means
// slog.LevelDebug.
func NewLineHandler(w io.Writer, level slog.Leveler) *LineHandler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &LineHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled implements slog.Handler.
func (h *LineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	src := sourceOf(r.PC)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] [%s:%d] [%s] | %s\n",
		StorageLevel(r.Level), ts.Format(time.DateTime), src.file, src.line, src.function, h.state.message(r))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

// WithAttrs implements slog.Handler.
func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LineHandler{mu: h.mu, w: h.w, level: h.level, state: h.state.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *LineHandler) WithGroup(name string) slog.Handler {
	return &LineHandler{mu: h.mu, w: h.w, level: h.level, state: h.state.withGroup(name)}
}
