package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehome/safehome/internal/storage/sqlite"
)

func armedState(t *testing.T, db string) (sensors map[int64]bool, zones map[int64]bool) {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{Path: db})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	sensors = map[int64]bool{}
	list, err := store.ListSensors(ctx)
	require.NoError(t, err)
	for _, s := range list {
		sensors[s.ID] = s.Armed
	}

	zones = map[int64]bool{}
	zl, err := store.ListZones(ctx)
	require.NoError(t, err)
	for _, z := range zl {
		zones[z.ID] = z.Armed
	}
	return sensors, zones
}

func TestModeSet(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "mode", "set", "Away")
	require.NoError(t, err)
	assert.Contains(t, out, "mode Away active, 10 sensors armed")

	sensors, zones := armedState(t, db)
	for id, armed := range sensors {
		assert.True(t, armed, "sensor %d should be armed in Away", id)
	}
	for id, armed := range zones {
		assert.True(t, armed, "zone %d should be armed in Away", id)
	}

	// Night leaves sensor 5 and motion detector 10 off, which are the only
	// sensors of the Bedroom.
	_, err = execute(t, "--db", db, "mode", "set", "Night")
	require.NoError(t, err)

	sensors, zones = armedState(t, db)
	assert.False(t, sensors[5])
	assert.False(t, sensors[10])
	assert.True(t, sensors[8])
	assert.False(t, zones[3], "Bedroom has no armed sensor")
	assert.True(t, zones[1])
	assert.True(t, zones[4])
}

func TestModeSet_Unknown(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	_, err = execute(t, "--db", db, "mode", "set", "Holiday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "--db", db, "mode", "set")
	require.Error(t, err, "a mode name is required")
}

func TestModeList(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "--db", db, "db", "init")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "mode", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1 Home [1 2 3 4 5 6 7]\n")
	assert.Contains(t, out, "5 Night [1 2 3 4 6 7 8 9]\n")
}
