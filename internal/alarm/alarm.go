// Package alarm drives the siren and the external emergency call.
package alarm

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDuration is how long the alarm rings before it stops by itself.
const DefaultDuration = 60 * time.Second

// Alarm is the siren. The zero value is not usable; call New.
type Alarm struct {
	duration time.Duration

	mu        sync.Mutex
	ringing   bool
	startedAt time.Time
	stopped   chan struct{}
	timer     *time.Timer
}

// Status describes the alarm for the API.
type Status struct {
	Ringing   bool      `json:"ringing"`
	StartedAt time.Time `json:"startedAt,omitzero"`
}

// New creates a silent alarm. A non-positive duration means DefaultDuration.
func New(duration time.Duration) *Alarm {
	if duration <= 0 {
		duration = DefaultDuration
	}
	a := &Alarm{duration: duration, stopped: make(chan struct{})}
	close(a.stopped)
	return a
}

// Ring starts the alarm. Ringing an alarm that already rings does nothing.
// The returned channel is closed when this ring ends.
func (a *Alarm) Ring() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ringing {
		return a.stopped
	}

	a.ringing = true
	a.startedAt = time.Now()
	stopped := make(chan struct{})
	a.stopped = stopped
	a.timer = time.AfterFunc(a.duration, func() { a.stop(stopped, "timeout") })
	slog.Warn("alarm ringing")
	return stopped
}

// Stop silences the alarm.
func (a *Alarm) Stop() {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	a.stop(stopped, "stopped")
}

func (a *Alarm) stop(ring chan struct{}, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// A timer from an earlier ring must not end the current one.
	if !a.ringing || a.stopped != ring {
		return
	}
	a.ringing = false
	a.timer.Stop()
	close(a.stopped)
	slog.Info("alarm silenced", "reason", reason, "rang_for", time.Since(a.startedAt).Round(100*time.Millisecond))
	a.startedAt = time.Time{}
}

// IsRinging reports whether the alarm rings.
func (a *Alarm) IsRinging() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ringing
}

// Stopped returns a channel closed when the current ring ends. It is already
// closed when the alarm is silent.
func (a *Alarm) Stopped() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// Status returns the alarm state.
func (a *Alarm) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Ringing: a.ringing, StartedAt: a.startedAt}
}
