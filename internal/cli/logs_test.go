package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

func seedLogs(t *testing.T, db string, recs ...storage.LogRecord) {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{Path: db, SeedIfEmpty: true})
	require.NoError(t, err)
	defer store.Close()
	for _, rec := range recs {
		_, err := store.InsertLog(context.Background(), rec)
		require.NoError(t, err)
	}
}

func TestLogsList(t *testing.T) {
	db := tempDB(t)
	now := time.Now()
	seedLogs(t, db,
		storage.LogRecord{Timestamp: now.Add(-2 * time.Minute), Level: storage.LevelInfo,
			Filename: "system.go", FunctionName: "turnOn", LineNumber: 140, Message: "system turned on"},
		storage.LogRecord{Timestamp: now.Add(-time.Minute), Level: storage.LevelCritical,
			Filename: "intrusion.go", FunctionName: "HandleIntrusion", LineNumber: 30, Message: "intrusion detected"},
	)

	out, err := execute(t, "--db", db, "logs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[INFO] ")
	assert.Contains(t, out, "[system.go:140] [turnOn] | system turned on")
	assert.Less(t, strings.Index(out, "system turned on"), strings.Index(out, "intrusion detected"), "oldest first")

	out, err = execute(t, "--db", db, "--format", "json", "logs", "list", "--level", "critical")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []logEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "CRITICAL", resp.Data[0].Level)
	assert.Equal(t, "intrusion detected", resp.Data[0].Message)
}

func TestLogsList_UnknownLevel(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "logs", "list", "--level", "loud")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogsPrune(t *testing.T) {
	db := tempDB(t)
	now := time.Now()
	seedLogs(t, db,
		storage.LogRecord{Timestamp: now.Add(-72 * time.Hour), Level: storage.LevelInfo, Message: "old"},
		storage.LogRecord{Timestamp: now, Level: storage.LevelInfo, Message: "new"},
	)

	out, err := execute(t, "--db", db, "--format", "json", "logs", "prune", "--older-than", "24h")
	require.NoError(t, err)

	var resp struct {
		Data pruneResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.Deleted)

	store, err := sqlite.New(sqlite.Config{Path: db})
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.QueryLogs(context.Background(), storage.LogQuery{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].Message)
}

func TestLogsPrune_UsesRetentionDays(t *testing.T) {
	db := tempDB(t)
	seedLogs(t, db,
		storage.LogRecord{Timestamp: time.Now().Add(-10 * 24 * time.Hour), Level: storage.LevelInfo, Message: "old"},
	)
	t.Setenv("SAFEHOME_RETENTION_DAYS", "7")

	out, err := execute(t, "--db", db, "logs", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 log records")
}

func TestLogsPrune_NoRetention(t *testing.T) {
	t.Setenv("SAFEHOME_RETENTION_DAYS", "0")
	_, err := execute(t, "--db", tempDB(t), "logs", "prune")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
