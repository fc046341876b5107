package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/safehome/safehome/internal/storage"
)

// Manager owns the sensor set. It is safe for concurrent use by the
// monitor, the control panel and HTTP handlers.
type Manager struct {
	store storage.SensorStore

	mu      sync.RWMutex
	sensors map[int64]*Sensor
}

// NewManager creates a Manager over the given sensors. store may be nil
// when persistence is not needed.
func NewManager(store storage.SensorStore, sensors []Sensor) *Manager {
	m := &Manager{store: store, sensors: make(map[int64]*Sensor, len(sensors))}
	for i := range sensors {
		s := sensors[i]
		m.sensors[s.ID] = &s
	}
	return m
}

// Load reads every sensor from store.
func Load(ctx context.Context, store storage.SensorStore) (*Manager, error) {
	records, err := store.ListSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	sensors := make([]Sensor, len(records))
	for i, r := range records {
		sensors[i] = FromRecord(r)
	}
	return NewManager(store, sensors), nil
}

// Get returns a copy of the sensor with the given id.
func (m *Manager) Get(id int64) (Sensor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[id]
	if !ok {
		return Sensor{}, false
	}
	return *s, true
}

// List returns copies of every sensor ordered by id.
func (m *Manager) List() []Sensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every sensor id in ascending order.
func (m *Manager) IDs() []int64 {
	list := m.List()
	ids := make([]int64, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

// update applies fn to one sensor. Returns false when id is unknown.
func (m *Manager) update(id int64, fn func(*Sensor)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

func (m *Manager) updateAll(fn func(*Sensor)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sensors {
		fn(s)
	}
}

func arm(s *Sensor)     { s.Armed = true }
func disarm(s *Sensor)  { s.Armed = false }
func intrude(s *Sensor) { s.Detected = true }
func release(s *Sensor) { s.Detected = false }

// Arm arms one sensor.
func (m *Manager) Arm(id int64) bool { return m.update(id, arm) }

// Disarm disarms one sensor.
func (m *Manager) Disarm(id int64) bool { return m.update(id, disarm) }

// Intrude simulates a detection on one sensor.
func (m *Manager) Intrude(id int64) bool { return m.update(id, intrude) }

// Release clears the detection on one sensor.
func (m *Manager) Release(id int64) bool { return m.update(id, release) }

// ArmMany arms the known sensors among ids. Unknown ids are skipped.
func (m *Manager) ArmMany(ids []int64) {
	for _, id := range ids {
		m.Arm(id)
	}
}

// DisarmMany disarms the known sensors among ids. Unknown ids are skipped.
func (m *Manager) DisarmMany(ids []int64) {
	for _, id := range ids {
		m.Disarm(id)
	}
}

// ArmAll arms every sensor.
func (m *Manager) ArmAll() { m.updateAll(arm) }

// DisarmAll disarms every sensor.
func (m *Manager) DisarmAll() { m.updateAll(disarm) }

// ReleaseAll clears every detection.
func (m *Manager) ReleaseAll() { m.updateAll(release) }

// ApplyArmed arms exactly the sensors in ids and disarms all others.
func (m *Manager) ApplyArmed(ids []int64) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	m.updateAll(func(s *Sensor) { s.Armed = want[s.ID] })
}

// Move relocates a sensor's anchor point.
func (m *Manager) Move(id int64, x, y int) bool {
	return m.update(id, func(s *Sensor) { s.X, s.Y = x, y })
}

// Read reports whether the sensor is armed and detecting.
func (m *Manager) Read(id int64) bool {
	s, ok := m.Get(id)
	return ok && s.Read()
}

// Detecting returns the armed sensors that currently read an intrusion,
// ordered by id.
func (m *Manager) Detecting() []Sensor {
	var out []Sensor
	for _, s := range m.List() {
		if s.Read() {
			out = append(out, s)
		}
	}
	return out
}

// IntrusionDetected reports whether any sensor reads an intrusion.
func (m *Manager) IntrusionDetected() bool {
	return len(m.Detecting()) > 0
}

// Save persists the armed flag and position of every sensor.
func (m *Manager) Save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	for _, s := range m.List() {
		if err := m.store.UpdateSensor(ctx, s.Record()); err != nil {
			return fmt.Errorf("save sensor %d: %w", s.ID, err)
		}
	}
	return nil
}
