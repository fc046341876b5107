package controlpanel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/storage/sqlite"
	"github.com/safehome/safehome/internal/system"
)

type recordingCaller struct {
	mu      sync.Mutex
	numbers []string
}

func (c *recordingCaller) Call(_ context.Context, number string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numbers = append(c.numbers, number)
	return true
}

func newPanel(t *testing.T) (*Panel, *system.System) {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{Path: ":memory:", SeedIfEmpty: true})
	require.NoError(t, err)

	sys := system.New(store, system.Options{
		Caller:       &recordingCaller{},
		PollInterval: time.Hour,
		CallDelay:    time.Hour,
	})
	t.Cleanup(func() {
		sys.TurnOff(context.Background())
		store.Close()
	})
	return New(sys), sys
}

func press(p *Panel, keys ...string) {
	for _, k := range keys {
		p.Press(context.Background(), k)
	}
}

func loginMaster(t *testing.T, p *Panel) {
	t.Helper()
	press(p, "1", "6", "*", "*", "1", "2", "3", "4")
	require.Equal(t, Initialized, p.State())
	require.Equal(t, "(master) Login successful", p.Display().Line1)
}

func TestPowerOn(t *testing.T) {
	p, sys := newPanel(t)

	d := p.Display()
	assert.Equal(t, Offline, d.State)
	assert.False(t, d.Powered)
	assert.Equal(t, "turn-off", d.Line1)

	press(p, "6", "#", "panic")
	assert.Equal(t, Offline, p.State(), "offline panel only reacts to '1'")
	assert.False(t, sys.IsOn())

	press(p, "1")
	d = p.Display()
	assert.Equal(t, Initialized, d.State)
	assert.True(t, sys.IsOn())
	assert.Equal(t, "(unauthorized) System Ready", d.Line1)
	assert.Equal(t, "Press '6' for Function Mode", d.Line2)
	assert.Equal(t, int64(1), d.Zone)
	assert.Equal(t, "Living Room", d.ZoneName)

	press(p, "6")
	assert.Equal(t, FunctionMode, p.State())
	press(p, "2")
	assert.Equal(t, Offline, p.State())
	assert.False(t, sys.IsOn())
}

func TestMasterLogin(t *testing.T) {
	p, _ := newPanel(t)
	loginMaster(t, p)
	require.NotNil(t, p.CurrentUser())
	assert.Equal(t, "master", p.CurrentUser().UserID)
}

func TestGuestLoginWithoutCode(t *testing.T) {
	p, _ := newPanel(t)
	press(p, "1", "6", "*")
	assert.Equal(t, PanelIDInput, p.State())

	press(p, "#")
	assert.Equal(t, Initialized, p.State())
	assert.Equal(t, "(guest) Login successful", p.Display().Line1)
}

func TestThreeBadCodesLock(t *testing.T) {
	p, _ := newPanel(t)
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	press(p, "1", "6", "*", "*", "0", "0", "0", "0")
	assert.Equal(t, DigitInput, p.State())
	assert.Equal(t, "Please try again (trial left: 2)", p.Display().Line2)

	press(p, "0", "0", "0", "0")
	assert.Equal(t, "Please try again (trial left: 1)", p.Display().Line2)

	press(p, "0", "0", "0", "0")
	d := p.Display()
	assert.Equal(t, Locked, d.State)
	assert.Equal(t, "(unauthorized) Panel is locked", d.Line1)
	assert.Equal(t, "Unlock in 10s", d.Line2)

	press(p, "#", "1", "panic")
	assert.Equal(t, Locked, p.State(), "locked panel ignores keys")

	now = now.Add(4 * time.Second)
	p.Tick(context.Background())
	assert.Equal(t, "Unlock in 6s", p.Display().Line2)

	now = now.Add(auth.PanelLockDuration)
	p.Tick(context.Background())
	assert.Equal(t, Initialized, p.State())
}

func TestFunctionKeysRequireLogin(t *testing.T) {
	p, sys := newPanel(t)
	press(p, "1", "6", "4")

	d := p.Display()
	assert.Equal(t, "(unauthorized) Unauthorized", d.Line1)
	assert.Equal(t, "Please login as master", d.Line2)
	assert.False(t, d.Away)

	press(p, "9")
	assert.Equal(t, "Please login first", p.Display().Line2)

	loginMaster(t, p)
	press(p, "6", "4")
	d = p.Display()
	assert.True(t, d.Away)
	assert.False(t, d.Home)
	for _, s := range sys.Sensors().List() {
		assert.True(t, s.Armed, "sensor %d", s.ID)
	}

	press(p, "5")
	d = p.Display()
	assert.True(t, d.Home)
	assert.False(t, d.Away)
	s8, _ := sys.Sensors().Get(8)
	assert.False(t, s8.Armed, "Home mode leaves motion detectors off")
}

func TestZoneNavigation(t *testing.T) {
	p, _ := newPanel(t)
	press(p, "1", "6", "*", "#", "6")
	require.Equal(t, FunctionMode, p.State())

	press(p, "9")
	assert.Equal(t, int64(2), p.Display().Zone)
	press(p, "7", "7")
	assert.Equal(t, int64(4), p.Display().Zone, "previous wraps to the last zone")
	press(p, "9")
	assert.Equal(t, int64(1), p.Display().Zone, "next wraps to the first zone")

	press(p, "8")
	assert.Equal(t, "Please login as master", p.Display().Line2)
	assert.False(t, p.Display().Armed)
}

func TestToggleZone(t *testing.T) {
	p, sys := newPanel(t)
	loginMaster(t, p)

	press(p, "6", "8")
	assert.True(t, p.Display().Armed)
	s1, _ := sys.Sensors().Get(1)
	assert.True(t, s1.Armed)

	press(p, "8")
	assert.False(t, p.Display().Armed)
	s1, _ = sys.Sensors().Get(1)
	assert.False(t, s1.Armed)
}

func TestMasterPasswordChange(t *testing.T) {
	p, sys := newPanel(t)
	loginMaster(t, p)

	press(p, "6", "0")
	assert.Equal(t, MasterPasswordChange1, p.State())
	press(p, "5", "6")
	assert.Equal(t, "New password: **", p.Display().Line2)
	press(p, "7", "8")
	assert.Equal(t, MasterPasswordChange2, p.State())

	press(p, "5", "6", "7", "9")
	assert.Equal(t, Initialized, p.State())
	assert.Equal(t, "(master) Password mismatch!", p.Display().Line1)

	press(p, "6", "0", "5", "6", "7", "8", "5", "6", "7", "8")
	d := p.Display()
	assert.Equal(t, "(master) Password changed!", d.Line1)
	assert.Equal(t, "Successfully updated", d.Line2)

	_, err := sys.Login().LoginPanel(context.Background(), "master", "5678")
	assert.NoError(t, err)
}

func TestPanic(t *testing.T) {
	p, _ := newPanel(t)
	press(p, "1", "panic")

	d := p.Display()
	assert.Equal(t, PanicMode, d.State)
	assert.Equal(t, "(unauthorized) Emergency call successful", d.Line1)
	assert.Equal(t, "Called to 911, 010-1234-5678", d.Line2)

	press(p, "#")
	assert.Equal(t, Initialized, p.State())
}

func TestRingingAlarm(t *testing.T) {
	p, sys := newPanel(t)
	ctx := context.Background()
	press(p, "1")

	sensors := sys.Sensors()
	sensors.Arm(5)
	sensors.Intrude(5)
	s5, _ := sensors.Get(5)
	sys.HandleIntrusion(ctx, s5)

	p.Tick(ctx)
	d := p.Display()
	assert.Equal(t, RingingAlarm, d.State)
	assert.Equal(t, "(unauthorized) Alarm ringing", d.Line1)
	assert.Contains(t, d.Line2, "External call starts in")

	press(p, "6")
	assert.Equal(t, RingingAlarm, p.State())

	// Releasing every sensor silences the alarm.
	sensors.Release(5)
	p.Tick(ctx)
	assert.Equal(t, Initialized, p.State())
	assert.False(t, sys.Alarm().IsRinging())

	// '#' silences it as well.
	sensors.Intrude(5)
	sys.HandleIntrusion(ctx, s5)
	p.Tick(ctx)
	require.Equal(t, RingingAlarm, p.State())
	press(p, "#")
	assert.Equal(t, Initialized, p.State())
	assert.False(t, sys.Alarm().IsRinging())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "MASTER_PASSWORD_CHANGE_INPUT_2", MasterPasswordChange2.String())
	b, err := RingingAlarm.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "RINGING_ALARM", string(b))
	assert.Equal(t, "State(42)", State(42).String())
}

func TestValidKey(t *testing.T) {
	for _, k := range []string{"0", "9", "*", "#", "panic"} {
		assert.True(t, ValidKey(k), k)
	}
	for _, k := range []string{"", "10", "a", "PANIC"} {
		assert.False(t, ValidKey(k), k)
	}
}
