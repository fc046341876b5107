package configuration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/storage/sqlite"
)

func loadSeeded(t *testing.T) (*Manager, *sensor.Manager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{Path: ":memory:", SeedIfEmpty: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	sensors, err := sensor.Load(ctx, store)
	require.NoError(t, err)
	m, err := Load(ctx, store, sensors)
	require.NoError(t, err)
	return m, sensors, store
}

func intp(n int) *int { return &n }

func TestOverlaps(t *testing.T) {
	base := Rect{X1: 0, Y1: 0, X2: 200, Y2: 150}
	tests := []struct {
		name string
		o    Rect
		want bool
	}{
		{"same", base, true},
		{"inside", Rect{10, 10, 20, 20}, true},
		{"partial", Rect{150, 100, 250, 200}, true},
		{"touching edge", Rect{200, 0, 400, 150}, false},
		{"touching corner", Rect{200, 150, 400, 300}, false},
		{"apart", Rect{300, 200, 400, 300}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.o))
			assert.Equal(t, tt.want, tt.o.Overlaps(base))
		})
	}
}

func TestSensorInRect(t *testing.T) {
	r := Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}
	door := func(x, y int) sensor.Sensor {
		return sensor.Sensor{Type: storage.SensorWindowDoor, X: x, Y: y}
	}
	motion := func(x, y, x2, y2 int) sensor.Sensor {
		return sensor.Sensor{Type: storage.SensorMotion, X: x, Y: y, X2: intp(x2), Y2: intp(y2)}
	}

	assert.True(t, SensorInRect(door(150, 150), r))
	assert.True(t, SensorInRect(door(100, 200), r), "border counts as inside")
	assert.False(t, SensorInRect(door(99, 150), r))

	assert.True(t, SensorInRect(motion(150, 150, 300, 150), r), "one end inside")
	assert.True(t, SensorInRect(motion(50, 150, 250, 150), r), "crosses the zone")
	assert.False(t, SensorInRect(motion(0, 50, 300, 50), r))
}

func TestSeedMembershipMatchesGeometry(t *testing.T) {
	m, sensors, _ := loadSeeded(t)

	for _, z := range m.Zones() {
		got := SensorsInRect(sensors.List(), ZoneRect(z))
		assert.Equal(t, z.SensorIDs, got, "zone %s", z.Name)
	}
}

func TestAddZone(t *testing.T) {
	m, sensors, store := loadSeeded(t)
	ctx := context.Background()

	// Clear the floor plan so a new zone fits.
	require.NoError(t, m.DeleteZone(ctx, 4))

	_, err := m.AddZone(ctx, storage.SafetyZone{Name: "kitchen", X1: 200, Y1: 150, X2: 400, Y2: 300})
	assert.ErrorIs(t, err, ErrZoneExists, "names are compared case-insensitively")

	_, err = m.AddZone(ctx, storage.SafetyZone{Name: "Porch", X1: 150, Y1: 150, X2: 400, Y2: 300})
	assert.ErrorIs(t, err, ErrZoneOverlap)

	_, err = m.AddZone(ctx, storage.SafetyZone{Name: "Bad", X1: 400, Y1: 150, X2: 200, Y2: 300})
	assert.ErrorIs(t, err, ErrInvalidZone)

	z, err := m.AddZone(ctx, storage.SafetyZone{Name: "Workshop", X1: 200, Y1: 150, X2: 400, Y2: 300})
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7, 10}, z.SensorIDs)
	assert.Len(t, m.Zones(), 4)

	stored, err := store.GetZoneByName(ctx, "Workshop")
	require.NoError(t, err)
	assert.Equal(t, z.ID, stored.ID)

	// Moving a sensor and reassigning picks up the new geometry.
	sensors.Move(7, 10, 10)
	require.NoError(t, m.AssignSensorsByGeometry(ctx))
	lr, _ := m.Zone(1)
	assert.Equal(t, []int64{1, 2, 7, 8}, lr.SensorIDs)
	ws, _ := m.Zone(z.ID)
	assert.Equal(t, []int64{6, 10}, ws.SensorIDs)
}

func TestUpdateZone(t *testing.T) {
	m, _, store := loadSeeded(t)
	ctx := context.Background()

	z, ok := m.Zone(1)
	require.True(t, ok)
	z.Name = "Lounge"
	z.SensorIDs = nil
	require.NoError(t, m.UpdateZone(ctx, z), "a zone may overlap its own previous area")

	got, _ := m.Zone(1)
	assert.Equal(t, "Lounge", got.Name)
	assert.Equal(t, []int64{1, 2, 8}, got.SensorIDs, "nil sensors keep membership")

	z.SensorIDs = []int64{1}
	require.NoError(t, m.UpdateZone(ctx, z))
	stored, err := store.GetZone(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, stored.SensorIDs)

	z.X2 = 300
	assert.ErrorIs(t, m.UpdateZone(ctx, z), ErrZoneOverlap)

	assert.ErrorIs(t, m.UpdateZone(ctx, storage.SafetyZone{ID: 99, Name: "x"}), ErrZoneNotFound)
	assert.ErrorIs(t, m.DeleteZone(ctx, 99), ErrZoneNotFound)
}

func TestArmAndDisarmZone(t *testing.T) {
	m, sensors, store := loadSeeded(t)
	ctx := context.Background()

	require.NoError(t, m.ArmZone(ctx, 3))
	for _, id := range []int64{5, 10} {
		s, _ := sensors.Get(id)
		assert.True(t, s.Armed, "sensor %d", id)
	}
	bedroom, _ := m.Zone(3)
	assert.True(t, bedroom.Armed)

	stored, err := store.GetZone(ctx, 3)
	require.NoError(t, err)
	assert.True(t, stored.Armed)
	rec, err := store.GetSensor(ctx, 5)
	require.NoError(t, err)
	assert.True(t, rec.Armed)

	// Garage shares motion sensor 10 but has nothing else armed, so the
	// shared detector is released with the bedroom.
	require.NoError(t, m.DisarmZone(ctx, 3))
	for _, s := range sensors.List() {
		assert.False(t, s.Armed, "sensor %d", s.ID)
	}
	for _, z := range m.Zones() {
		assert.False(t, z.Armed, "zone %s", z.Name)
	}

	assert.ErrorIs(t, m.ArmZone(ctx, 99), ErrZoneNotFound)
	assert.ErrorIs(t, m.DisarmZone(ctx, 99), ErrZoneNotFound)
}

func TestDisarmKeepsSharedMotionSensor(t *testing.T) {
	m, sensors, _ := loadSeeded(t)
	ctx := context.Background()

	require.NoError(t, m.ArmZone(ctx, 3))
	require.NoError(t, m.ArmZone(ctx, 4))

	require.NoError(t, m.DisarmZone(ctx, 3))

	s5, _ := sensors.Get(5)
	assert.False(t, s5.Armed, "window/door sensors are always disarmed")
	s10, _ := sensors.Get(10)
	assert.True(t, s10.Armed, "garage still guards with motion sensor 10")

	garage, _ := m.Zone(4)
	assert.True(t, garage.Armed)
}

func TestChangeToMode(t *testing.T) {
	m, sensors, store := loadSeeded(t)
	ctx := context.Background()

	require.NoError(t, m.ChangeToMode(ctx, "Away"))
	for _, s := range sensors.List() {
		assert.True(t, s.Armed, "sensor %d", s.ID)
	}
	for _, z := range m.Zones() {
		assert.True(t, z.Armed, "zone %s", z.Name)
	}

	require.NoError(t, m.ChangeToMode(ctx, "Night"))
	s5, _ := sensors.Get(5)
	assert.False(t, s5.Armed)
	s10, _ := sensors.Get(10)
	assert.False(t, s10.Armed)
	bedroom, _ := m.Zone(3)
	assert.False(t, bedroom.Armed)
	garage, _ := m.Zone(4)
	assert.True(t, garage.Armed)

	rec, err := store.GetSensor(ctx, 10)
	require.NoError(t, err)
	assert.False(t, rec.Armed)

	assert.ErrorIs(t, m.ChangeToMode(ctx, "Vacation"), ErrModeNotFound)
}

func TestModes(t *testing.T) {
	m, _, store := loadSeeded(t)
	ctx := context.Background()

	modes := m.Modes()
	require.Len(t, modes, 5)
	assert.Equal(t, "Home", modes[0].Name)

	md, err := m.AddMode(ctx, "Party", []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, md.SensorIDs)

	md.SensorIDs = []int64{3}
	require.NoError(t, m.UpdateMode(ctx, md))
	got, ok := m.ModeByName("Party")
	require.True(t, ok)
	assert.Equal(t, []int64{3}, got.SensorIDs)

	ids, err := store.ModeSensors(ctx, md.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	require.NoError(t, m.DeleteMode(ctx, md.ID))
	_, ok = m.Mode(md.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, m.DeleteMode(ctx, md.ID), ErrModeNotFound)
	assert.ErrorIs(t, m.UpdateMode(ctx, storage.SafeHomeMode{ID: 99, Name: "x"}), ErrModeNotFound)

	_, err = m.AddMode(ctx, "  ", nil)
	assert.Error(t, err)
}

func TestUpdateSystemSettings(t *testing.T) {
	m, _, store := loadSeeded(t)
	ctx := context.Background()

	cur := m.Settings()
	assert.Equal(t, "911", cur.PanicPhoneNumber)

	tests := []struct {
		name    string
		lock    *int
		delay   *int
		wantErr bool
	}{
		{"valid", intp(10), intp(5), false},
		{"negative lock", intp(-1), intp(5), true},
		{"short delay", intp(10), intp(4), true},
		{"unset values", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cur
			s.SystemLockTime = tt.lock
			s.AlarmDelayTime = tt.delay
			err := m.UpdateSystemSettings(ctx, s)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSettings)
				return
			}
			require.NoError(t, err)
			stored, err := store.GetSystemSettings(ctx, storage.DefaultSettingsID)
			require.NoError(t, err)
			assert.Equal(t, tt.lock, stored.SystemLockTime)
			assert.Equal(t, tt.delay, m.Settings().AlarmDelayTime)
		})
	}
}
