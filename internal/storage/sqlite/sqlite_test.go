package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

func newTestStore(t *testing.T, seed bool) *Store {
	t.Helper()
	store, err := New(Config{Path: ":memory:", SeedIfEmpty: seed})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestStore(t *testing.T) {
	storage.StoreTestSuite(t, func() (storage.Store, func()) {
		store, err := New(Config{Path: ":memory:", SeedIfEmpty: true})
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		return store, func() { store.Close() }
	})
}

func TestSchemaVersionAndTables(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	v, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("Version = %d, want %d", v, schemaVersion)
	}

	tables, err := store.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	want := []string{
		"cameras", "logs", "safehome_mode_sensors", "safehome_modes",
		"safety_zone_sensors", "safety_zones", "sensors", "sessions",
		"system_settings", "users",
	}
	if len(tables) != len(want) {
		t.Fatalf("Tables = %v, want %v", tables, want)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Errorf("table[%d] = %s, want %s", i, tables[i], want[i])
		}
	}
}

func TestIndexesReferenceExistingColumns(t *testing.T) {
	store := newTestStore(t, false)
	db := store.DB()

	rows, err := db.Query(`SELECT name, tbl_name FROM sqlite_master WHERE type = 'index' AND sql IS NOT NULL`)
	if err != nil {
		t.Fatalf("list indexes: %v", err)
	}
	type index struct{ name, table string }
	var indexes []index
	for rows.Next() {
		var ix index
		if err := rows.Scan(&ix.name, &ix.table); err != nil {
			t.Fatalf("scan: %v", err)
		}
		indexes = append(indexes, ix)
	}
	rows.Close()

	if len(indexes) == 0 {
		t.Fatal("expected explicit indexes in the schema")
	}

	for _, ix := range indexes {
		cols, err := store.columns(context.Background(), ix.table)
		if err != nil {
			t.Fatalf("columns of %s: %v", ix.table, err)
		}
		if len(cols) == 0 {
			t.Errorf("index %s is on missing table %s", ix.name, ix.table)
			continue
		}
		have := map[string]bool{}
		for _, c := range cols {
			have[c] = true
		}

		info, err := db.Query(`SELECT name FROM pragma_index_info(?)`, ix.name)
		if err != nil {
			t.Fatalf("index info %s: %v", ix.name, err)
		}
		for info.Next() {
			var col sql.NullString
			if err := info.Scan(&col); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if !col.Valid || !have[col.String] {
				t.Errorf("index %s references unknown column %q on %s", ix.name, col.String, ix.table)
			}
		}
		info.Close()
	}
}

func TestUserRoleConstraint(t *testing.T) {
	store := newTestStore(t, false)
	db := store.DB()

	tests := []struct {
		name    string
		role    string
		panelID any
		panelPw any
		webID   any
		webPw   any
		wantErr bool
	}{
		{"homeowner complete", "HOMEOWNER", "h1", "1234", "h1", "12345678", false},
		{"homeowner without panel id", "HOMEOWNER", nil, "1234", "h2", "12345678", false},
		{"homeowner null panel password", "HOMEOWNER", "h3", nil, "h3", "12345678", true},
		{"homeowner null web id", "HOMEOWNER", "h4", "1234", nil, "12345678", true},
		{"homeowner null web password", "HOMEOWNER", "h5", "1234", "h5", nil, true},
		{"guest minimal", "GUEST", "g1", nil, nil, nil, false},
		{"guest with panel password", "GUEST", "g2", "1111", nil, nil, false},
		{"guest null panel id", "GUEST", nil, nil, nil, nil, true},
		{"guest with web id", "GUEST", "g3", nil, "g3", nil, true},
		{"guest with web password", "GUEST", "g4", nil, nil, "12345678", true},
		{"unknown role", "ADMIN", "a1", "1234", "a1", "12345678", true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Exec(`INSERT INTO users (user_id, role, panel_id, panel_password, web_id, web_password) VALUES (?, ?, ?, ?, ?, ?)`,
				tt.name, tt.role, tt.panelID, tt.panelPw, tt.webID, tt.webPw)
			if tt.wantErr && err == nil {
				t.Errorf("case %d: insert should have been rejected", i)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("case %d: unexpected error: %v", i, err)
			}
		})
	}
}

func TestInsertHomeownerWithoutPanelPassword(t *testing.T) {
	store := newTestStore(t, false)

	err := store.InsertUser(context.Background(), storage.User{
		UserID: "owner",
		Role:   storage.RoleHomeowner,
		WebID:  "owner",
		// PanelPassword left empty, stored as NULL.
		WebPassword: "12345678",
	})
	if !errors.Is(err, storage.ErrConstraint) {
		t.Fatalf("InsertUser error = %v, want ErrConstraint", err)
	}
	if n := countRows(t, store.DB(), "users"); n != 0 {
		t.Errorf("users has %d rows, want 0", n)
	}
}

func TestCameraConstraints(t *testing.T) {
	store := newTestStore(t, false)
	db := store.DB()

	tests := []struct {
		name        string
		pan, zoom   int
		hasPassword int
		password    any
		wantErr     bool
	}{
		{"defaults", 0, 1, 0, nil, false},
		{"pan lower bound", -3, 1, 0, nil, false},
		{"pan upper bound", 3, 5, 0, nil, false},
		{"pan below range", -4, 1, 0, nil, true},
		{"pan above range", 4, 1, 0, nil, true},
		{"zoom zero", 0, 0, 0, nil, true},
		{"zoom above range", 0, 6, 0, nil, true},
		{"password with flag", 0, 1, 1, "0000", false},
		{"flag without password", 0, 1, 1, nil, true},
		{"flag out of range", 0, 1, 2, "0000", true},
		// Only the forward implication is enforced.
		{"password without flag", 0, 1, 0, "0000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Exec(`INSERT INTO cameras (coordinate_x, coordinate_y, pan, zoom_setting, has_password, password) VALUES (0, 0, ?, ?, ?, ?)`,
				tt.pan, tt.zoom, tt.hasPassword, tt.password)
			if tt.wantErr && err == nil {
				t.Error("insert should have been rejected")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	var bad int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cameras WHERE (has_password = 1 AND password IS NULL) OR pan NOT BETWEEN -3 AND 3 OR zoom_setting NOT BETWEEN 1 AND 5`).Scan(&bad); err != nil {
		t.Fatalf("query: %v", err)
	}
	if bad != 0 {
		t.Errorf("%d camera rows violate the constraints", bad)
	}
}

func TestLogLevelConstraint(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	for _, lvl := range []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"} {
		if _, err := store.DB().Exec(`INSERT INTO logs (level, message) VALUES (?, 'ok')`, lvl); err != nil {
			t.Errorf("level %s rejected: %v", lvl, err)
		}
	}
	for _, lvl := range []string{"TRACE", "info", "WARN", ""} {
		if _, err := store.DB().Exec(`INSERT INTO logs (level, message) VALUES (?, 'bad')`, lvl); err == nil {
			t.Errorf("level %q should be rejected", lvl)
		}
	}

	if _, err := store.InsertLog(ctx, storage.LogRecord{Level: storage.LevelUnknown, Message: "x"}); !errors.Is(err, storage.ErrConstraint) {
		t.Errorf("InsertLog with unknown level error = %v, want ErrConstraint", err)
	}

	logs, err := store.QueryLogs(ctx, storage.LogQuery{})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(logs) != 5 {
		t.Errorf("got %d logs, want 5", len(logs))
	}
	for _, l := range logs {
		if l.Level == storage.LevelUnknown {
			t.Errorf("log %d has unknown level", l.ID)
		}
	}
}

func TestQueryLogsAfterIDUsesStorageOrder(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()
	now := time.Now()

	var ids []int64
	for i, ts := range []time.Time{now, now.Add(-time.Second), now.Add(time.Second)} {
		id, err := store.InsertLog(ctx, storage.LogRecord{Timestamp: ts, Level: storage.LevelInfo, Message: string(rune('a' + i))})
		if err != nil {
			t.Fatalf("InsertLog failed: %v", err)
		}
		ids = append(ids, id)
	}

	logs, err := store.QueryLogs(ctx, storage.LogQuery{AfterID: ids[0]})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(logs) != 2 || logs[0].Message != "b" || logs[1].Message != "c" {
		t.Fatalf("AfterID returned %+v, want b then c", logs)
	}

	logs, err = store.QueryLogs(ctx, storage.LogQuery{AfterID: ids[0], Limit: 1})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].ID != ids[1] {
		t.Errorf("AfterID with limit returned %+v, want log %d", logs, ids[1])
	}
}

func TestDeleteModeCascades(t *testing.T) {
	store := newTestStore(t, true)
	db := store.DB()

	var away int64
	if err := db.QueryRow(`SELECT mode_id FROM safehome_modes WHERE mode_name = 'Away'`).Scan(&away); err != nil {
		t.Fatalf("find Away: %v", err)
	}

	before := countRows(t, db, "safehome_mode_sensors")
	var linked int
	db.QueryRow(`SELECT COUNT(*) FROM safehome_mode_sensors WHERE mode_id = ?`, away).Scan(&linked)
	if linked != 10 {
		t.Fatalf("Away has %d sensors, want 10", linked)
	}

	if _, err := db.Exec(`DELETE FROM safehome_modes WHERE mode_id = ?`, away); err != nil {
		t.Fatalf("delete mode: %v", err)
	}

	var left int
	db.QueryRow(`SELECT COUNT(*) FROM safehome_mode_sensors WHERE mode_id = ?`, away).Scan(&left)
	if left != 0 {
		t.Errorf("%d junction rows survived the mode delete", left)
	}
	if after := countRows(t, db, "safehome_mode_sensors"); after != before-linked {
		t.Errorf("junction rows = %d, want %d", after, before-linked)
	}
}

func TestDeleteSensorCascadesToJunctions(t *testing.T) {
	store := newTestStore(t, true)
	db := store.DB()

	if _, err := db.Exec(`DELETE FROM sensors WHERE sensor_id = 10`); err != nil {
		t.Fatalf("delete sensor: %v", err)
	}
	for _, table := range []string{"safehome_mode_sensors", "safety_zone_sensors"} {
		var n int
		db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE sensor_id = 10`).Scan(&n)
		if n != 0 {
			t.Errorf("%s still references sensor 10", table)
		}
	}
}

func TestSeedIsAtomic(t *testing.T) {
	store := newTestStore(t, false)
	ctx := context.Background()

	// A statement that violates the camera pan CHECK after every other insert.
	broken := seedSQL + "\nINSERT INTO cameras (camera_id, coordinate_x, coordinate_y, pan) VALUES (99, 0, 0, 9);\n"

	err := store.seedScript(ctx, broken)
	if !errors.Is(err, storage.ErrConstraint) {
		t.Fatalf("seedScript error = %v, want ErrConstraint", err)
	}

	tables, err := store.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	for _, table := range tables {
		if n := countRows(t, store.DB(), table); n != 0 {
			t.Errorf("%s has %d rows after a failed seed, want 0", table, n)
		}
	}

	// The healthy seed still applies afterwards.
	if err := store.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n := countRows(t, store.DB(), "sensors"); n != 10 {
		t.Errorf("sensors = %d, want 10", n)
	}
}

func TestSeedTwiceIsRejected(t *testing.T) {
	store := newTestStore(t, true)

	if err := store.Seed(context.Background()); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("second Seed error = %v, want ErrAlreadyExists", err)
	}
	if n := countRows(t, store.DB(), "users"); n != 2 {
		t.Errorf("users = %d after rejected reseed, want 2", n)
	}
}

func TestSeedContents(t *testing.T) {
	store := newTestStore(t, true)
	db := store.DB()

	counts := map[string]int{
		"users":                 2,
		"system_settings":       1,
		"sensors":               10,
		"cameras":               3,
		"safety_zones":          4,
		"safehome_modes":        5,
		"safehome_mode_sensors": 7 + 10 + 9 + 10 + 8,
		"logs":                  0,
		"sessions":              0,
	}
	for table, want := range counts {
		if got := countRows(t, db, table); got != want {
			t.Errorf("%s has %d rows, want %d", table, got, want)
		}
	}

	var violating int
	db.QueryRow(`SELECT COUNT(*) FROM users WHERE
		(role = 'HOMEOWNER' AND (panel_password IS NULL OR web_id IS NULL OR web_password IS NULL))
		OR (role = 'GUEST' AND (web_id IS NOT NULL OR web_password IS NOT NULL))`).Scan(&violating)
	if violating != 0 {
		t.Errorf("%d seeded users violate the role rule", violating)
	}

	problems, err := store.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("Check reported problems: %v", problems)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t, true)
	ctx := context.Background()

	if _, err := store.InsertLog(ctx, storage.LogRecord{Level: storage.LevelInfo, Message: "before reset"}); err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}
	if err := store.DeleteMode(ctx, 1); err != nil {
		t.Fatalf("DeleteMode failed: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if n := countRows(t, store.DB(), "logs"); n != 0 {
		t.Errorf("logs = %d after reset, want 0", n)
	}
	if _, err := store.GetModeByName(ctx, "Home"); err != nil {
		t.Errorf("Home mode missing after reset: %v", err)
	}

	var fk int
	store.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if fk != 1 {
		t.Error("foreign_keys should be on after reset")
	}
}

func TestFileStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safehome.db")

	store, err := New(Config{Path: path, SeedIfEmpty: true})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.DiskSizeBytes == 0 {
		t.Error("file store should report its size")
	}
	store.Close()

	// Reopening must not seed a second time.
	store, err = New(Config{Path: path, SeedIfEmpty: true})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if n := countRows(t, store.DB(), "users"); n != 2 {
		t.Errorf("users = %d after reopen, want 2", n)
	}

	if _, err := store.DB().Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	store.Close()

	if _, err := New(Config{Path: path}); err == nil {
		t.Error("opening a database with a newer schema version should fail")
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New with empty path should fail")
	}
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{"", []int64{}},
		{"7", []int64{7}},
		{"1,2,10", []int64{1, 2, 10}},
	}
	for _, tt := range tests {
		got, err := parseIDList(tt.in)
		if err != nil {
			t.Errorf("parseIDList(%q) error: %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseIDList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIDList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}

	if _, err := parseIDList("1,x"); err == nil {
		t.Error("parseIDList should reject non numeric ids")
	}
}
