package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

// StoreTestSuite runs a standard test suite against any Store implementation.
// newStore must return a store loaded with the initial data set.
func StoreTestSuite(t *testing.T, newStore func() (Store, func())) {
	t.Run("Users", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		master, err := store.GetUserByWebID(ctx, "master")
		if err != nil {
			t.Fatalf("GetUserByWebID failed: %v", err)
		}
		if master.Role != RoleHomeowner {
			t.Errorf("master role = %s, want %s", master.Role, RoleHomeowner)
		}

		guest, err := store.GetUserByPanelID(ctx, "guest")
		if err != nil {
			t.Fatalf("GetUserByPanelID failed: %v", err)
		}
		if guest.PanelPassword != "" || guest.WebID != "" {
			t.Errorf("guest should have no panel password or web id, got %+v", guest)
		}

		u := User{UserID: "visitor", Role: RoleGuest, PanelID: "visitor", PanelPassword: "4444"}
		if err := store.InsertUser(ctx, u); err != nil {
			t.Fatalf("InsertUser failed: %v", err)
		}
		if err := store.InsertUser(ctx, u); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("duplicate InsertUser error = %v, want ErrAlreadyExists", err)
		}

		pw := "5555"
		if err := store.UpdateUser(ctx, "visitor", UserUpdate{PanelPassword: &pw}); err != nil {
			t.Fatalf("UpdateUser failed: %v", err)
		}
		got, _ := store.GetUser(ctx, "visitor")
		if got.PanelPassword != "5555" {
			t.Errorf("PanelPassword = %q, want 5555", got.PanelPassword)
		}

		if err := store.UpdateUser(ctx, "nobody", UserUpdate{PanelPassword: &pw}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateUser on missing user error = %v, want ErrNotFound", err)
		}

		if err := store.DeleteUser(ctx, "visitor"); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}
		if _, err := store.GetUser(ctx, "visitor"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetUser after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("LogsNewestFirst", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		for i, lvl := range []Level{LevelInfo, LevelWarning, LevelError, LevelInfo} {
			rec := LogRecord{
				Timestamp:    base.Add(time.Duration(i) * time.Minute),
				Level:        lvl,
				Filename:     "system.go",
				FunctionName: "TurnOn",
				LineNumber:   10 + i,
				Message:      "event",
			}
			if _, err := store.InsertLog(ctx, rec); err != nil {
				t.Fatalf("InsertLog failed: %v", err)
			}
		}

		all, err := store.QueryLogs(ctx, LogQuery{})
		if err != nil {
			t.Fatalf("QueryLogs failed: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("got %d logs, want 4", len(all))
		}
		if !all[0].Timestamp.Equal(base.Add(3 * time.Minute)) {
			t.Errorf("first log at %v, want newest", all[0].Timestamp)
		}
		if all[0].LineNumber != 13 {
			t.Errorf("LineNumber = %d, want 13", all[0].LineNumber)
		}

		infos, _ := store.QueryLogs(ctx, LogQuery{Level: LevelInfo})
		if len(infos) != 2 {
			t.Errorf("got %d INFO logs, want 2", len(infos))
		}

		ranged, _ := store.QueryLogs(ctx, LogQuery{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)})
		if len(ranged) != 2 {
			t.Errorf("got %d logs in range, want 2", len(ranged))
		}

		limited, _ := store.QueryLogs(ctx, LogQuery{Limit: 1})
		if len(limited) != 1 {
			t.Errorf("got %d logs with limit 1, want 1", len(limited))
		}

		n, err := store.DeleteLogsBefore(ctx, base.Add(2*time.Minute))
		if err != nil {
			t.Fatalf("DeleteLogsBefore failed: %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteLogsBefore removed %d, want 2", n)
		}
	})

	t.Run("SystemSettings", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		set, err := store.GetSystemSettings(ctx, DefaultSettingsID)
		if err != nil {
			t.Fatalf("GetSystemSettings failed: %v", err)
		}
		if set.PanicPhoneNumber != "911" || set.SystemLockTime == nil || *set.SystemLockTime != 30 {
			t.Errorf("unexpected seeded settings: %+v", set)
		}

		delay := 12
		set.AlarmDelayTime = &delay
		set.HomeownerPhoneNumber = "010-0000-0000"
		if err := store.UpdateSystemSettings(ctx, *set); err != nil {
			t.Fatalf("UpdateSystemSettings failed: %v", err)
		}
		got, _ := store.GetSystemSettings(ctx, DefaultSettingsID)
		if *got.AlarmDelayTime != 12 || got.HomeownerPhoneNumber != "010-0000-0000" {
			t.Errorf("update not applied: %+v", got)
		}

		tooShort := 4
		set.AlarmDelayTime = &tooShort
		if err := store.UpdateSystemSettings(ctx, *set); !errors.Is(err, ErrConstraint) {
			t.Errorf("alarm delay 4 error = %v, want ErrConstraint", err)
		}

		id, err := store.InsertSystemSettings(ctx, SystemSettings{PanicPhoneNumber: "112"})
		if err != nil {
			t.Fatalf("InsertSystemSettings failed: %v", err)
		}
		if err := store.DeleteSystemSettings(ctx, id); err != nil {
			t.Fatalf("DeleteSystemSettings failed: %v", err)
		}
		if _, err := store.GetSystemSettings(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSystemSettings after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Sensors", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		sensors, err := store.ListSensors(ctx)
		if err != nil {
			t.Fatalf("ListSensors failed: %v", err)
		}
		if len(sensors) != 10 {
			t.Fatalf("got %d sensors, want 10", len(sensors))
		}

		motion, err := store.GetSensor(ctx, 8)
		if err != nil {
			t.Fatalf("GetSensor failed: %v", err)
		}
		if motion.Type != SensorMotion || motion.X2 == nil {
			t.Errorf("sensor 8 should be a motion segment, got %+v", motion)
		}

		motion.Armed = true
		if err := store.UpdateSensor(ctx, *motion); err != nil {
			t.Fatalf("UpdateSensor failed: %v", err)
		}
		got, _ := store.GetSensor(ctx, 8)
		if !got.Armed {
			t.Error("sensor 8 should be armed")
		}

		motion.X2 = nil
		if err := store.UpdateSensor(ctx, *motion); !errors.Is(err, ErrConstraint) {
			t.Errorf("motion sensor without end point error = %v, want ErrConstraint", err)
		}

		if _, err := store.GetSensor(ctx, 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSensor(99) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Cameras", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		cams, err := store.ListCameras(ctx)
		if err != nil {
			t.Fatalf("ListCameras failed: %v", err)
		}
		if len(cams) != 3 {
			t.Fatalf("got %d cameras, want 3", len(cams))
		}

		id, err := store.InsertCamera(ctx, Camera{X: 10, Y: 10, Zoom: 1})
		if err != nil {
			t.Fatalf("InsertCamera failed: %v", err)
		}
		if id != 4 {
			t.Errorf("new camera id = %d, want 4", id)
		}

		c, _ := store.GetCamera(ctx, id)
		c.Pan = 4
		if err := store.UpdateCamera(ctx, *c); !errors.Is(err, ErrConstraint) {
			t.Errorf("pan 4 error = %v, want ErrConstraint", err)
		}

		if err := store.DeleteCamera(ctx, id); err != nil {
			t.Fatalf("DeleteCamera failed: %v", err)
		}
		if err := store.DeleteCamera(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteCamera error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Zones", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		zones, err := store.ListZones(ctx)
		if err != nil {
			t.Fatalf("ListZones failed: %v", err)
		}
		if len(zones) != 4 {
			t.Fatalf("got %d zones, want 4", len(zones))
		}

		living, err := store.GetZoneByName(ctx, "Living Room")
		if err != nil {
			t.Fatalf("GetZoneByName failed: %v", err)
		}
		if !equalIDs(living.SensorIDs, []int64{1, 2, 8}) {
			t.Errorf("Living Room sensors = %v, want [1 2 8]", living.SensorIDs)
		}

		id, err := store.InsertZone(ctx, SafetyZone{Name: "Attic", X1: 0, Y1: 300, X2: 50, Y2: 350, SensorIDs: []int64{5}})
		if err != nil {
			t.Fatalf("InsertZone failed: %v", err)
		}
		if _, err := store.InsertZone(ctx, SafetyZone{Name: "Attic"}); !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("duplicate zone name error = %v, want ErrAlreadyExists", err)
		}

		if err := store.SetZoneSensors(ctx, id, []int64{5, 10, 5}); err != nil {
			t.Fatalf("SetZoneSensors failed: %v", err)
		}
		attic, _ := store.GetZone(ctx, id)
		if !equalIDs(attic.SensorIDs, []int64{5, 10}) {
			t.Errorf("Attic sensors = %v, want [5 10]", attic.SensorIDs)
		}

		attic.Armed = true
		attic.X2 = -1
		if err := store.UpdateZone(ctx, *attic); !errors.Is(err, ErrConstraint) {
			t.Errorf("inverted rectangle error = %v, want ErrConstraint", err)
		}

		if err := store.DeleteZone(ctx, id); err != nil {
			t.Fatalf("DeleteZone failed: %v", err)
		}
		if err := store.SetZoneSensors(ctx, id, nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetZoneSensors on deleted zone error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Modes", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()
		ctx := context.Background()

		modes, err := store.ListModes(ctx)
		if err != nil {
			t.Fatalf("ListModes failed: %v", err)
		}
		if len(modes) != 5 {
			t.Fatalf("got %d modes, want 5", len(modes))
		}

		home, err := store.GetModeByName(ctx, "Home")
		if err != nil {
			t.Fatalf("GetModeByName failed: %v", err)
		}
		if !equalIDs(home.SensorIDs, []int64{1, 2, 3, 4, 5, 6, 7}) {
			t.Errorf("Home sensors = %v", home.SensorIDs)
		}

		id, err := store.InsertMode(ctx, "Party", []int64{9, 3})
		if err != nil {
			t.Fatalf("InsertMode failed: %v", err)
		}
		ids, _ := store.ModeSensors(ctx, id)
		if !equalIDs(ids, []int64{3, 9}) {
			t.Errorf("ModeSensors = %v, want [3 9]", ids)
		}

		if err := store.UpdateMode(ctx, SafeHomeMode{ID: id, Name: "Party", SensorIDs: []int64{1}}); err != nil {
			t.Fatalf("UpdateMode failed: %v", err)
		}
		ids, _ = store.ModeSensors(ctx, id)
		if !equalIDs(ids, []int64{1}) {
			t.Errorf("ModeSensors after update = %v, want [1]", ids)
		}

		if _, err := store.InsertMode(ctx, "Ghost", []int64{42}); !errors.Is(err, ErrConstraint) {
			t.Errorf("mode with unknown sensor error = %v, want ErrConstraint", err)
		}
		if _, err := store.GetModeByName(ctx, "Ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("failed InsertMode must leave no mode row, got %v", err)
		}

		if err := store.DeleteMode(ctx, id); err != nil {
			t.Fatalf("DeleteMode failed: %v", err)
		}
		ids, _ = store.ModeSensors(ctx, id)
		if len(ids) != 0 {
			t.Errorf("mode sensors should cascade on delete, got %v", ids)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()

		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Users != 2 || stats.Sensors != 10 || stats.Cameras != 3 || stats.Zones != 4 || stats.Modes != 5 {
			t.Errorf("unexpected stats: %+v", stats)
		}
		if stats.Logs != 0 || !stats.OldestLog.IsZero() {
			t.Errorf("seeded store should have no logs: %+v", stats)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		store, cleanup := newStore()
		defer cleanup()

		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := store.ListSensors(context.Background()); !errors.Is(err, ErrStorageClosed) {
			t.Errorf("ListSensors after close error = %v, want ErrStorageClosed", err)
		}
	})
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
