package server

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// SessionCleaner removes expired web sessions.
type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RetentionWorker periodically deletes old log records and expired
// sessions.
type RetentionWorker struct {
	logs     storage.LogStore
	sessions SessionCleaner
	config   Config

	totalRuns            atomic.Int64
	totalDeleted         atomic.Int64
	totalSessionsDeleted atomic.Int64
	lastRunTime          atomic.Pointer[time.Time]
	lastRunError         atomic.Pointer[error]
}

// RetentionStats contains retention worker statistics.
type RetentionStats struct {
	TotalRuns            int64
	TotalDeleted         int64
	TotalSessionsDeleted int64
	LastRunTime          time.Time
	LastRunError         error
}

// NewRetentionWorker creates a new retention worker. sessions may be nil.
func NewRetentionWorker(logs storage.LogStore, sessions SessionCleaner, config Config) *RetentionWorker {
	return &RetentionWorker{
		logs:     logs,
		sessions: sessions,
		config:   config,
	}
}

// Run starts the retention worker. Blocks until ctx is canceled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if !w.config.RetentionEnabled() && w.sessions == nil {
		slog.Info("retention disabled, worker not starting")
		return
	}

	slog.Info("retention worker starting",
		"retention_days", w.config.RetentionDays,
		"interval", w.config.RetentionInterval,
	)

	// Run immediately on startup
	w.runOnce(ctx)

	ticker := time.NewTicker(w.config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("retention worker stopping")
			return
		}
	}
}

// runOnce executes a single cleanup cycle.
func (w *RetentionWorker) runOnce(ctx context.Context) {
	w.totalRuns.Add(1)
	now := time.Now()
	w.lastRunTime.Store(&now)

	var runErr error

	if w.sessions != nil {
		n, err := w.sessions.DeleteExpired(ctx)
		if err != nil {
			runErr = err
			slog.Error("session cleanup failed", "error", err)
		} else {
			w.totalSessionsDeleted.Add(n)
			if n > 0 {
				slog.Info("expired sessions removed", "deleted", n)
			}
		}
	}

	if w.config.RetentionEnabled() {
		if err := w.deleteLogs(ctx); err != nil {
			runErr = err
		}
	}

	if runErr != nil {
		w.lastRunError.Store(&runErr)
		return
	}
	w.lastRunError.Store(nil)
}

func (w *RetentionWorker) deleteLogs(ctx context.Context) error {
	cutoff := w.config.RetentionCutoff()

	slog.Debug("retention cleanup starting",
		"cutoff", cutoff.Format(time.RFC3339),
	)

	deleted, err := w.logs.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention cleanup failed",
			"cutoff", cutoff.Format(time.RFC3339),
			"error", err,
		)
		return err
	}

	w.totalDeleted.Add(deleted)

	if deleted > 0 {
		slog.Info("retention cleanup completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	} else {
		slog.Debug("retention cleanup completed, no logs to delete",
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return nil
}

// Stats returns retention worker statistics.
func (w *RetentionWorker) Stats() RetentionStats {
	var lastErr error
	if errPtr := w.lastRunError.Load(); errPtr != nil {
		lastErr = *errPtr
	}

	var lastTime time.Time
	if timePtr := w.lastRunTime.Load(); timePtr != nil {
		lastTime = *timePtr
	}

	return RetentionStats{
		TotalRuns:            w.totalRuns.Load(),
		TotalDeleted:         w.totalDeleted.Load(),
		TotalSessionsDeleted: w.totalSessionsDeleted.Load(),
		LastRunTime:          lastTime,
		LastRunError:         lastErr,
	}
}
