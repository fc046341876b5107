// Package sensor models the window/door and motion sensors of a SafeHome
// installation and polls them for intrusions.
package sensor

import (
	"github.com/safehome/safehome/internal/storage"
)

// Sensor is an in-memory sensor device. Zero value is a disarmed,
// undetected window/door sensor at the origin.
type Sensor struct {
	ID   int64
	Type storage.SensorType
	X, Y int

	// X2, Y2 are the end point of a motion detector segment.
	X2, Y2 *int

	Armed    bool
	Detected bool
}

// FromRecord builds a Sensor from its stored row. The detection state is
// not persisted and starts cleared.
func FromRecord(r storage.Sensor) Sensor {
	return Sensor{
		ID:    r.ID,
		Type:  r.Type,
		X:     r.X,
		Y:     r.Y,
		X2:    copyInt(r.X2),
		Y2:    copyInt(r.Y2),
		Armed: r.Armed,
	}
}

// Record converts s back to its stored form.
func (s Sensor) Record() storage.Sensor {
	return storage.Sensor{
		ID:    s.ID,
		Type:  s.Type,
		X:     s.X,
		Y:     s.Y,
		X2:    copyInt(s.X2),
		Y2:    copyInt(s.Y2),
		Armed: s.Armed,
	}
}

// Read reports an intrusion only when the sensor is armed.
func (s Sensor) Read() bool {
	return s.Armed && s.Detected
}

// IsMotion reports whether s is a motion detector.
func (s Sensor) IsMotion() bool {
	return s.Type == storage.SensorMotion
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
