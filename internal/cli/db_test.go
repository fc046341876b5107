package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

func TestDBDump_Golden(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "db", "dump", "--skip-timestamps")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "db_dump", []byte(out))
}

func TestDBDump_JSONTables(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "--format", "json", "db", "dump", "--skip-timestamps", "--table", "system_settings,users")
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []sqlite.TableDump `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "system_settings", resp.Data[0].Name)
	assert.Equal(t, "users", resp.Data[1].Name)
	assert.Len(t, resp.Data[1].Rows, 2)
	assert.NotContains(t, resp.Data[1].Columns, "created_at")
}

func TestDBDump_UnknownTable(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "dump", "--table", "alarms")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDBInit_NoSeedThenSeed(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "db", "init", "--no-seed")
	require.NoError(t, err)
	assert.Contains(t, out, "schema created (schema version 1)")

	// The seed runs once and refuses a second time.
	out, err = execute(t, "--db", db, "db", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded")

	_, err = execute(t, "--db", db, "db", "seed")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestDBReset(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	store, err := sqlite.New(sqlite.Config{Path: db})
	require.NoError(t, err)
	require.NoError(t, store.DeleteZone(context.Background(), 4))
	require.NoError(t, store.Close())

	_, err = execute(t, "--db", db, "db", "reset")
	require.Error(t, err, "reset without --yes must refuse")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "--db", db, "db", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "reset")

	store, err = sqlite.New(sqlite.Config{Path: db})
	require.NoError(t, err)
	defer store.Close()
	zones, err := store.ListZones(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 4)
}

func TestDBCheck(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "db", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "users=2 logs=0 sensors=10 cameras=3 zones=4 modes=5")
	assert.Contains(t, out, "ok\n")

	out, err = execute(t, "--db", db, "--format", "yaml", "db", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "status: ok")
	assert.Contains(t, out, "problems: []")
}

func TestDBCommand_BadPath(t *testing.T) {
	_, err := execute(t, "--db", t.TempDir()+"/missing/dir/safehome.db", "db", "check")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
