package server

import (
	"context"
	"testing"
	"time"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{Path: ":memory:", SeedIfEmpty: true})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertLogs(t *testing.T, store *sqlite.Store, recs ...storage.LogRecord) {
	t.Helper()
	for _, rec := range recs {
		if _, err := store.InsertLog(context.Background(), rec); err != nil {
			t.Fatalf("InsertLog failed: %v", err)
		}
	}
}

func TestRetentionWorker_DeletesOldLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	oldTime := now.Add(-48 * time.Hour) // 2 days ago

	insertLogs(t, store,
		storage.LogRecord{Timestamp: oldTime, Level: storage.LevelInfo, Message: "old"},
		storage.LogRecord{Timestamp: now, Level: storage.LevelInfo, Message: "new"},
	)

	// Configure 1-day retention
	cfg := Config{
		RetentionDays:     1,
		RetentionInterval: time.Hour,
	}

	worker := NewRetentionWorker(store, nil, cfg)
	worker.runOnce(ctx)

	// Verify old log deleted, new log remains
	stats := worker.Stats()
	if stats.TotalDeleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", stats.TotalDeleted)
	}

	recs, err := store.QueryLogs(ctx, storage.LogQuery{})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record remaining, got %d", len(recs))
	}
	if recs[0].Message != "new" {
		t.Errorf("Expected 'new' message, got %q", recs[0].Message)
	}
}

func TestRetentionWorker_DisabledWhenZeroDays(t *testing.T) {
	cfg := Config{
		RetentionDays:     0,
		RetentionInterval: time.Millisecond,
	}

	if cfg.RetentionEnabled() {
		t.Error("RetentionEnabled should return false when days=0")
	}

	// Without sessions to clean there is nothing to do.
	worker := NewRetentionWorker(newTestStore(t), nil, cfg)
	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disabled worker should return immediately")
	}
	if worker.Stats().TotalRuns != 0 {
		t.Errorf("Expected no runs, got %d", worker.Stats().TotalRuns)
	}
}

func TestRetentionWorker_DeletesExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expired := auth.NewSessionStore(store.DB(), -time.Minute)
	if _, err := expired.Create(ctx, "master", auth.ChannelWeb); err != nil {
		t.Fatalf("Create session failed: %v", err)
	}
	live := auth.NewSessionStore(store.DB(), time.Hour)
	session, err := live.Create(ctx, "master", auth.ChannelWeb)
	if err != nil {
		t.Fatalf("Create session failed: %v", err)
	}

	// Retention of logs stays off; sessions are still cleaned.
	worker := NewRetentionWorker(store, live, Config{RetentionInterval: time.Hour})
	worker.runOnce(ctx)

	stats := worker.Stats()
	if stats.TotalSessionsDeleted != 1 {
		t.Errorf("Expected 1 session deleted, got %d", stats.TotalSessionsDeleted)
	}
	if stats.TotalDeleted != 0 {
		t.Errorf("Expected no logs deleted, got %d", stats.TotalDeleted)
	}
	if _, err := live.Get(ctx, session.ID); err != nil {
		t.Errorf("Live session should survive: %v", err)
	}
}

func TestRetentionWorker_GracefulShutdown(t *testing.T) {
	store := newTestStore(t)

	cfg := Config{
		RetentionDays:     7,
		RetentionInterval: 10 * time.Millisecond,
	}

	worker := NewRetentionWorker(store, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	// Let it run a few cycles
	time.Sleep(50 * time.Millisecond)

	// Cancel and verify clean shutdown
	cancel()

	select {
	case <-done:
		// Success - worker stopped
	case <-time.After(time.Second):
		t.Error("Worker did not stop within timeout")
	}

	if worker.Stats().TotalRuns < 1 {
		t.Error("Worker should have run at least once")
	}
}

func TestRetentionWorker_StatsTracking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Insert logs at different ages
	insertLogs(t, store,
		storage.LogRecord{Timestamp: now.Add(-72 * time.Hour), Level: storage.LevelInfo, Message: "very old"},
		storage.LogRecord{Timestamp: now.Add(-48 * time.Hour), Level: storage.LevelWarning, Message: "old"},
		storage.LogRecord{Timestamp: now, Level: storage.LevelInfo, Message: "new"},
	)

	cfg := Config{
		RetentionDays:     1,
		RetentionInterval: time.Hour,
	}

	worker := NewRetentionWorker(store, nil, cfg)

	// Run twice to accumulate stats
	worker.runOnce(ctx)
	worker.runOnce(ctx)

	stats := worker.Stats()
	if stats.TotalRuns != 2 {
		t.Errorf("Expected 2 runs, got %d", stats.TotalRuns)
	}
	if stats.TotalDeleted != 2 {
		t.Errorf("Expected 2 total deleted, got %d", stats.TotalDeleted)
	}
	if stats.LastRunTime.IsZero() {
		t.Error("LastRunTime should be set")
	}
	if stats.LastRunError != nil {
		t.Errorf("LastRunError should be nil, got %v", stats.LastRunError)
	}
}

func TestRetentionWorker_RecordsErrors(t *testing.T) {
	store, err := sqlite.New(sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.Close()

	worker := NewRetentionWorker(store, nil, Config{RetentionDays: 1, RetentionInterval: time.Hour})
	worker.runOnce(context.Background())

	if worker.Stats().LastRunError == nil {
		t.Error("Expected an error from a closed store")
	}
}

func TestRetentionCutoff(t *testing.T) {
	cfg := Config{
		RetentionDays: 7,
	}

	before := time.Now()
	cutoff := cfg.RetentionCutoff()
	after := time.Now()

	expectedBefore := before.Add(-7 * 24 * time.Hour)
	expectedAfter := after.Add(-7 * 24 * time.Hour)

	if cutoff.Before(expectedBefore) || cutoff.After(expectedAfter) {
		t.Errorf("Cutoff %v not in expected range [%v, %v]", cutoff, expectedBefore, expectedAfter)
	}
}
