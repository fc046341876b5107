package controlpanel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/system"
)

// DefaultTickInterval is how often Run refreshes timers and the display.
const DefaultTickInterval = 500 * time.Millisecond

// PasswordDigits is the length of a keypad code.
const PasswordDigits = auth.PanelPasswordLength

const (
	masterPanelID = "master"
	guestPanelID  = "guest"
)

// Panel is the keypad. It is safe for concurrent use.
type Panel struct {
	sys *system.System

	mu          sync.Mutex
	state       State
	line1       string
	line2       string
	panelID     string
	digits      []byte
	newPassword string
	zone        int64
	away, home  bool
	lockedUntil time.Time

	now func() time.Time
}

// New creates a panel that is offline.
func New(sys *system.System) *Panel {
	p := &Panel{sys: sys, now: time.Now}
	p.enter(Offline, msgTurnedOff, "")
	return p
}

// State returns the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Display returns the current display, prefixed with the login status.
func (p *Panel) Display() Display {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := Display{
		State:   p.state,
		Line1:   p.line1,
		Line2:   p.line2,
		Powered: p.state != Offline,
		Away:    p.away,
		Home:    p.home,
		Zone:    p.zone,
	}
	if d.Powered {
		d.Line1 = p.loginPrefix() + p.line1
	}
	if cfg := p.sys.Configuration(); cfg != nil && p.zone != 0 {
		if z, ok := cfg.Zone(p.zone); ok {
			d.Armed = z.Armed
			d.ZoneName = z.Name
		}
	}
	return d
}

func (p *Panel) loginPrefix() string {
	login := p.sys.Login()
	if login == nil {
		return "(system) "
	}
	u := login.CurrentUser(auth.ChannelPanel)
	switch {
	case u == nil:
		return "(unauthorized) "
	case u.PanelID == masterPanelID:
		return "(master) "
	case u.PanelID == guestPanelID:
		return "(guest) "
	default:
		return "(unauthorized) "
	}
}

func (p *Panel) isLoggedIn(panelID string) bool {
	login := p.sys.Login()
	if login == nil {
		return false
	}
	u := login.CurrentUser(auth.ChannelPanel)
	return u != nil && (panelID == "" || u.PanelID == panelID)
}

// enter switches state. Empty messages select the state's defaults.
func (p *Panel) enter(s State, line1, line2 string) {
	if s != p.state {
		slog.Debug("control panel state", "from", p.state.String(), "to", s.String())
	}
	p.state = s

	switch s {
	case Initialized:
		p.resetInput()
		p.newPassword = ""
		line1, line2 = or(line1, msgReady), or(line2, msgReadyHint)
	case Offline:
		p.resetInput()
		p.away, p.home = false, false
		line1 = or(line1, msgTurnedOff)
	case FunctionMode:
		line1, line2 = or(line1, msgFunction), or(line2, msgFunctionKeys)
	case PanelIDInput:
		p.resetInput()
		line1, line2 = or(line1, "Enter panel ID."), or(line2, "* for MASTER, # for GUEST")
	case DigitInput:
		p.digits = p.digits[:0]
		line1 = or(line1, "Enter 4 digits password.")
	case MasterPasswordChange1:
		p.digits = p.digits[:0]
		p.newPassword = ""
		line1 = or(line1, "Enter new password (4 digits)")
	case MasterPasswordChange2:
		p.digits = p.digits[:0]
		line1 = or(line1, "Re-enter new password")
	}
	p.line1, p.line2 = line1, line2
}

func (p *Panel) show(line1, line2 string) {
	p.line1, p.line2 = line1, line2
}

func (p *Panel) resetInput() {
	p.panelID = ""
	p.digits = p.digits[:0]
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Press handles one key: a digit, "*", "#" or "panic".
func (p *Panel) Press(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tick(ctx)
	key = strings.TrimSpace(key)

	switch {
	case p.state == Locked:
		return
	case p.state == Offline:
		if key == "1" {
			p.powerOn(ctx)
		}
		return
	case key == KeyPound && p.state != PanelIDInput:
		if p.state == RingingAlarm {
			p.sys.StopAlarm()
		}
		p.enter(Initialized, "", "")
		return
	case key == KeyPanic:
		p.panic(ctx)
		return
	}

	switch p.state {
	case Initialized:
		if key == "6" {
			p.enter(FunctionMode, "", "")
		}
	case FunctionMode:
		p.functionKey(ctx, key)
	case PanelIDInput:
		p.panelIDKey(ctx, key)
	case DigitInput:
		p.digitKey(ctx, key)
	case MasterPasswordChange1, MasterPasswordChange2:
		p.passwordChangeKey(ctx, key)
	}
}

func (p *Panel) powerOn(ctx context.Context) {
	if err := p.sys.TurnOn(ctx); err != nil {
		slog.Error("system startup failed", "error", err)
		p.show("System startup failed", "Please try again")
		return
	}
	if ids := p.zoneIDs(); len(ids) > 0 && !p.hasZone(ids) {
		p.zone = ids[0]
	}
	p.enter(Initialized, "", "")
}

func (p *Panel) powerOff(ctx context.Context) {
	if err := p.sys.TurnOff(ctx); err != nil {
		slog.Error("system shutdown failed", "error", err)
		p.show("System shutdown failed", "Please try again")
		return
	}
	p.enter(Offline, "", "")
}

func (p *Panel) authorize(panelID string) bool {
	if p.isLoggedIn(panelID) {
		return true
	}
	if panelID == "" {
		p.show("Unauthorized", "Please login first")
	} else {
		p.show("Unauthorized", "Please login as "+panelID)
	}
	return false
}

func (p *Panel) functionKey(ctx context.Context, key string) {
	switch key {
	case "1":
		p.powerOn(ctx)
	case "2":
		p.powerOff(ctx)
	case "3":
		if !p.authorize(masterPanelID) {
			return
		}
		if err := p.sys.Reset(ctx); err != nil {
			slog.Error("system reset failed", "error", err)
			p.show("System reset failed", "Please try again")
			return
		}
		p.away, p.home = false, false
		p.zone = 0
		if ids := p.zoneIDs(); len(ids) > 0 {
			p.zone = ids[0]
		}
		p.enter(Initialized, "", "")
	case "4":
		if p.authorize(masterPanelID) {
			p.changeMode(ctx, "Away")
		}
	case "5":
		if p.authorize(masterPanelID) {
			p.changeMode(ctx, "Home")
		}
	case "7":
		if p.authorize("") {
			p.stepZone(-1)
		}
	case "8":
		if p.authorize(masterPanelID) {
			p.toggleZone(ctx)
		}
	case "9":
		if p.authorize("") {
			p.stepZone(1)
		}
	case "0":
		if p.authorize(masterPanelID) {
			p.enter(MasterPasswordChange1, "", "")
		}
	case KeyStar:
		p.enter(PanelIDInput, "", "")
	}
}

func (p *Panel) changeMode(ctx context.Context, name string) {
	cfg := p.sys.Configuration()
	if cfg == nil || cfg.ChangeToMode(ctx, name) != nil {
		p.show(fmt.Sprintf("Failed to change to %s mode", strings.ToLower(name)), "Please try again")
		return
	}
	p.away, p.home = name == "Away", name == "Home"
}

func (p *Panel) zoneIDs() []int64 {
	cfg := p.sys.Configuration()
	if cfg == nil {
		return nil
	}
	zones := cfg.Zones()
	ids := make([]int64, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Panel) hasZone(ids []int64) bool {
	for _, id := range ids {
		if id == p.zone {
			return true
		}
	}
	return false
}

// stepZone moves the zone cursor, wrapping at both ends.
func (p *Panel) stepZone(delta int) {
	ids := p.zoneIDs()
	if len(ids) == 0 {
		return
	}
	idx := -1
	for i, id := range ids {
		if id == p.zone {
			idx = i
		}
	}
	if idx < 0 {
		p.zone = ids[0]
		return
	}
	p.zone = ids[(idx+delta+len(ids))%len(ids)]
}

func (p *Panel) toggleZone(ctx context.Context) {
	cfg := p.sys.Configuration()
	if cfg == nil || p.zone == 0 {
		return
	}
	z, ok := cfg.Zone(p.zone)
	if !ok {
		return
	}
	var err error
	if z.Armed {
		err = cfg.DisarmZone(ctx, z.ID)
	} else {
		err = cfg.ArmZone(ctx, z.ID)
	}
	if err != nil {
		slog.Error("toggle zone failed", "zone", z.ID, "error", err)
		p.show("Failed to arm/disarm zone", "Please try again")
	}
}

func (p *Panel) panelIDKey(ctx context.Context, key string) {
	switch key {
	case KeyStar:
		p.enter(DigitInput, "", "")
		p.panelID = masterPanelID
	case KeyPound:
		p.enter(DigitInput, "", "")
		p.panelID = guestPanelID
		// A guest without a code logs in directly.
		p.tryLogin(ctx, "", true)
	}
}

func (p *Panel) digitKey(ctx context.Context, key string) {
	if !isDigit(key) {
		return
	}
	p.digits = append(p.digits, key[0])
	p.show(p.line1, "Code: "+string(p.digits))
	if len(p.digits) == PasswordDigits {
		p.tryLogin(ctx, string(p.digits), false)
	}
}

// tryLogin attempts a panel login. quiet suppresses failure feedback for
// the passwordless guest attempt.
func (p *Panel) tryLogin(ctx context.Context, code string, quiet bool) {
	login := p.sys.Login()
	if login == nil {
		return
	}
	_, err := login.LoginPanel(ctx, p.panelID, code)
	p.digits = p.digits[:0]
	switch {
	case err == nil:
		p.enter(Initialized, "Login successful", "")
	case errors.Is(err, auth.ErrLocked):
		p.lockedUntil = p.now().Add(auth.PanelLockDuration)
		p.enter(Locked, "", "")
		p.showLock()
	case quiet:
		// Guest with a code: keep waiting for digits.
	default:
		p.show("Login failed", fmt.Sprintf("Please try again (trial left: %d)", login.TrialsLeft(auth.ChannelPanel)))
	}
}

func (p *Panel) showLock() {
	remaining := p.lockedUntil.Sub(p.now())
	p.show("Panel is locked", fmt.Sprintf("Unlock in %ds", int(remaining.Seconds())))
}

func (p *Panel) passwordChangeKey(ctx context.Context, key string) {
	if !isDigit(key) {
		return
	}
	p.digits = append(p.digits, key[0])
	masked := strings.Repeat("*", len(p.digits))

	if p.state == MasterPasswordChange1 {
		p.show(p.line1, "New password: "+masked)
		if len(p.digits) == PasswordDigits {
			p.newPassword = string(p.digits)
			p.enter(MasterPasswordChange2, "", "")
		}
		return
	}

	p.show(p.line1, "Confirm: "+masked)
	if len(p.digits) < PasswordDigits {
		return
	}
	confirm := string(p.digits)
	if confirm != p.newPassword {
		p.enter(Initialized, "Password mismatch!", "Please try again")
		return
	}
	login := p.sys.Login()
	if login == nil {
		return
	}
	if err := login.SetPanelPassword(ctx, masterPanelID, confirm); err != nil {
		slog.Error("change master password failed", "error", err)
		p.enter(Initialized, "Password change failed", "Please try again")
		return
	}
	slog.Info("master panel password changed")
	p.enter(Initialized, "Password changed!", "Successfully updated")
}

func (p *Panel) panic(ctx context.Context) {
	called := p.sys.ExternalCall(ctx)
	p.enter(PanicMode, "", "")
	if len(called) == 0 {
		p.show("Emergency call failed", "Please try again")
		return
	}
	p.show("Emergency call successful", "Called to "+strings.Join(called, ", "))
}

// Tick refreshes timers: it unlocks an expired lock, follows the alarm and
// stops it once every sensor is released.
func (p *Panel) Tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick(ctx)
}

func (p *Panel) tick(ctx context.Context) {
	switch p.state {
	case Offline:
		return
	case Locked:
		if !p.now().Before(p.lockedUntil) {
			p.lockedUntil = time.Time{}
			p.enter(Initialized, "", "")
		} else {
			p.showLock()
		}
		return
	}

	ringing := p.sys.Alarm().IsRinging()
	if !ringing {
		if p.state == RingingAlarm {
			p.enter(Initialized, "", "")
		}
		return
	}

	if sensors := p.sys.Sensors(); sensors != nil && !sensors.IntrusionDetected() {
		p.sys.StopAlarm()
		p.enter(Initialized, "", "")
		return
	}

	if p.state != RingingAlarm && p.state != PanicMode {
		p.enter(RingingAlarm, "", "")
	}
	if p.state == RingingAlarm {
		if left := p.sys.CallCountdown(); left > 0 {
			p.show("Alarm ringing", fmt.Sprintf("External call starts in %ds", int(left.Seconds())))
		} else {
			p.show("Alarm ringing...", "External call Started...")
		}
	}
}

// Run calls Tick every interval until ctx is canceled.
func (p *Panel) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CurrentUser returns the user logged in on the keypad, or nil.
func (p *Panel) CurrentUser() *storage.User {
	login := p.sys.Login()
	if login == nil {
		return nil
	}
	return login.CurrentUser(auth.ChannelPanel)
}

func isDigit(key string) bool {
	return len(key) == 1 && key[0] >= '0' && key[0] <= '9'
}
