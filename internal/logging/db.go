package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// writeTimeout bounds a single insert so a busy database cannot stall the
// caller indefinitely.
const writeTimeout = 5 * time.Second

// DBHandler is a slog.Handler that stores every record in the logs table.
type DBHandler struct {
	store storage.LogStore
	level slog.Leveler
	state attrState
}

// NewDBHandler creates a DBHandler. A nil level means slog.LevelInfo.
func NewDBHandler(store storage.LogStore, level slog.Leveler) *DBHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &DBHandler{store: store, level: level}
}

// Enabled implements slog.Handler.
func (h *DBHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *DBHandler) Handle(ctx context.Context, r slog.Record) error {
	src := sourceOf(r.PC)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	// The record outlives a cancelled request context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, err := h.store.InsertLog(ctx, storage.LogRecord{
		Timestamp:    ts,
		Level:        StorageLevel(r.Level),
		Filename:     src.file,
		FunctionName: src.function,
		LineNumber:   src.line,
		Message:      h.state.message(r),
	})
	return err
}

// WithAttrs implements slog.Handler.
func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DBHandler{store: h.store, level: h.level, state: h.state.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *DBHandler) WithGroup(name string) slog.Handler {
	return &DBHandler{store: h.store, level: h.level, state: h.state.withGroup(name)}
}
