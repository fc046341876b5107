// Package camera models the SafeHome surveillance cameras and their
// pan/zoom, password lock and enable controls.
package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// Pan and zoom bounds.
const (
	MinPan  = -3
	MaxPan  = 3
	MinZoom = 1
	MaxZoom = 5
)

// overlayTimeLayout is the timestamp format of the view overlay.
const overlayTimeLayout = "2006-01-02 15:04:05"

// Control is a pan/zoom command.
type Control string

const (
	PanRight Control = "PAN_RIGHT"
	PanLeft  Control = "PAN_LEFT"
	ZoomIn   Control = "ZOOM_IN"
	ZoomOut  Control = "ZOOM_OUT"
)

// ParseControl converts a control name, case-insensitively.
func ParseControl(s string) (Control, bool) {
	c := Control(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case PanRight, PanLeft, ZoomIn, ZoomOut:
		return c, true
	}
	return "", false
}

// ValidationResult is the outcome of a camera password check.
type ValidationResult int

const (
	Valid ValidationResult = iota
	NoPassword
	InvalidID
	Incorrect
)

func (r ValidationResult) String() string {
	switch r {
	case Valid:
		return "VALID"
	case NoPassword:
		return "NO_PASSWORD"
	case InvalidID:
		return "INVALID_ID"
	case Incorrect:
		return "INCORRECT"
	default:
		return fmt.Sprintf("ValidationResult(%d)", int(r))
	}
}

// Camera is the in-memory state of one camera. A camera with a password
// starts locked.
type Camera struct {
	ID       int64
	X, Y     int
	Pan      int
	Zoom     int
	Password string
	Enabled  bool
	Locked   bool
}

// FromRecord builds a Camera from its stored row.
func FromRecord(r storage.Camera) Camera {
	c := Camera{
		ID:      r.ID,
		X:       r.X,
		Y:       r.Y,
		Pan:     r.Pan,
		Zoom:    r.Zoom,
		Enabled: r.Enabled,
	}
	if r.HasPassword {
		c.Password = r.Password
		c.Locked = true
	}
	return c
}

// Record converts c back to its stored row.
func (c Camera) Record() storage.Camera {
	return storage.Camera{
		ID:          c.ID,
		X:           c.X,
		Y:           c.Y,
		Pan:         c.Pan,
		Zoom:        c.Zoom,
		HasPassword: c.HasPassword(),
		Password:    c.Password,
		Enabled:     c.Enabled,
	}
}

// HasPassword reports whether a password is set.
func (c *Camera) HasPassword() bool { return c.Password != "" }

// Apply executes a control. It returns false and changes nothing when the
// camera is already at the bound.
func (c *Camera) Apply(ctl Control) bool {
	switch ctl {
	case PanRight:
		return step(&c.Pan, 1, MinPan, MaxPan)
	case PanLeft:
		return step(&c.Pan, -1, MinPan, MaxPan)
	case ZoomIn:
		return step(&c.Zoom, 1, MinZoom, MaxZoom)
	case ZoomOut:
		return step(&c.Zoom, -1, MinZoom, MaxZoom)
	}
	return false
}

func step(v *int, delta, lo, hi int) bool {
	next := *v + delta
	if next < lo || next > hi {
		*v = min(max(*v, lo), hi)
		return false
	}
	*v = next
	return true
}

// SetPassword sets or, for an empty password, removes the password. Setting
// a password locks the camera; removing it unlocks.
func (c *Camera) SetPassword(password string) {
	c.Password = password
	c.Locked = password != ""
}

// Check compares password with the camera password.
func (c *Camera) Check(password string) ValidationResult {
	if !c.HasPassword() {
		return NoPassword
	}
	if password != c.Password {
		return Incorrect
	}
	return Valid
}

// View is what a camera currently shows.
type View struct {
	CameraID int64  `json:"cameraId"`
	Blank    bool   `json:"blank"`
	Overlay  string `json:"overlay,omitempty"`
}

// View renders the view at time now. Disabled and locked cameras are blank.
func (c *Camera) View(now time.Time) View {
	if !c.Enabled || c.Locked {
		return View{CameraID: c.ID, Blank: true}
	}

	var direction string
	switch {
	case c.Pan > 0:
		direction = fmt.Sprintf("right %d", c.Pan)
	case c.Pan < 0:
		direction = fmt.Sprintf("left %d", -c.Pan)
	default:
		direction = "center"
	}
	return View{
		CameraID: c.ID,
		Overlay:  fmt.Sprintf("time: %s, zoom x%d, %s", now.Format(overlayTimeLayout), c.Zoom, direction),
	}
}
