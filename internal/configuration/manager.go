// Package configuration manages system settings, SafeHome modes and safety
// zones, and keeps zone arm state consistent with the sensors.
package configuration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
)

var (
	ErrInvalidSettings = errors.New("configuration: invalid system settings")
	ErrModeNotFound    = errors.New("configuration: mode not found")
	ErrZoneNotFound    = errors.New("configuration: zone not found")
	ErrZoneExists      = errors.New("configuration: zone name already in use")
	ErrZoneOverlap     = errors.New("configuration: zone overlaps an existing zone")
	ErrInvalidZone     = errors.New("configuration: invalid zone")
)

// MinAlarmDelay is the smallest accepted alarm delay, in seconds.
const MinAlarmDelay = 5

// Store is the persistence the configuration manager needs.
type Store interface {
	storage.SettingsStore
	storage.ModeStore
	storage.ZoneStore
}

// Manager caches the configuration and writes every change through to
// storage.
type Manager struct {
	store   Store
	sensors *sensor.Manager

	mu       sync.RWMutex
	settings storage.SystemSettings
	modes    map[int64]storage.SafeHomeMode
	zones    map[int64]storage.SafetyZone
}

// Load reads settings, modes and zones from store.
func Load(ctx context.Context, store Store, sensors *sensor.Manager) (*Manager, error) {
	m := &Manager{store: store, sensors: sensors}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload replaces the cache with the stored configuration.
func (m *Manager) Reload(ctx context.Context) error {
	set, err := m.store.GetSystemSettings(ctx, storage.DefaultSettingsID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	modes, err := m.store.ListModes(ctx)
	if err != nil {
		return fmt.Errorf("load modes: %w", err)
	}
	zones, err := m.store.ListZones(ctx)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = *set
	m.modes = make(map[int64]storage.SafeHomeMode, len(modes))
	for _, md := range modes {
		m.modes[md.ID] = md
	}
	m.zones = make(map[int64]storage.SafetyZone, len(zones))
	for _, z := range zones {
		m.zones[z.ID] = z
	}
	return nil
}

// Settings returns the current system settings.
func (m *Manager) Settings() storage.SystemSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// ValidateSettings checks the lock time and alarm delay bounds.
func ValidateSettings(s storage.SystemSettings) error {
	if s.SystemLockTime != nil && *s.SystemLockTime < 0 {
		return fmt.Errorf("%w: system lock time must not be negative", ErrInvalidSettings)
	}
	if s.AlarmDelayTime != nil && *s.AlarmDelayTime < MinAlarmDelay {
		return fmt.Errorf("%w: alarm delay must be at least %d seconds", ErrInvalidSettings, MinAlarmDelay)
	}
	return nil
}

// UpdateSystemSettings validates and stores s as the settings row.
func (m *Manager) UpdateSystemSettings(ctx context.Context, s storage.SystemSettings) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}
	if s.ID == 0 {
		s.ID = storage.DefaultSettingsID
	}
	if err := m.store.UpdateSystemSettings(ctx, s); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	stored, err := m.store.GetSystemSettings(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}

	m.mu.Lock()
	m.settings = *stored
	m.mu.Unlock()
	slog.Info("system settings updated")
	return nil
}

// Mode returns the mode with the given id.
func (m *Manager) Mode(id int64) (storage.SafeHomeMode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.modes[id]
	return md, ok
}

// ModeByName returns the mode with the given name.
func (m *Manager) ModeByName(name string) (storage.SafeHomeMode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, md := range m.modes {
		if md.Name == name {
			return md, true
		}
	}
	return storage.SafeHomeMode{}, false
}

// Modes returns every mode ordered by id.
func (m *Manager) Modes() []storage.SafeHomeMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]storage.SafeHomeMode, 0, len(m.modes))
	for _, md := range m.modes {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateMode replaces the name and sensor set of an existing mode.
func (m *Manager) UpdateMode(ctx context.Context, md storage.SafeHomeMode) error {
	if _, ok := m.Mode(md.ID); !ok {
		return ErrModeNotFound
	}
	if err := m.store.UpdateMode(ctx, md); err != nil {
		return fmt.Errorf("update mode: %w", err)
	}
	return m.reloadMode(ctx, md.ID)
}

// AddMode creates a mode.
func (m *Manager) AddMode(ctx context.Context, name string, sensorIDs []int64) (storage.SafeHomeMode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.SafeHomeMode{}, errors.New("configuration: mode name is required")
	}
	id, err := m.store.InsertMode(ctx, name, sensorIDs)
	if err != nil {
		return storage.SafeHomeMode{}, fmt.Errorf("insert mode: %w", err)
	}
	if err := m.reloadMode(ctx, id); err != nil {
		return storage.SafeHomeMode{}, err
	}
	md, _ := m.Mode(id)
	return md, nil
}

// DeleteMode removes a mode.
func (m *Manager) DeleteMode(ctx context.Context, id int64) error {
	if err := m.store.DeleteMode(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrModeNotFound
		}
		return fmt.Errorf("delete mode: %w", err)
	}
	m.mu.Lock()
	delete(m.modes, id)
	m.mu.Unlock()
	return nil
}

func (m *Manager) reloadMode(ctx context.Context, id int64) error {
	md, err := m.store.GetMode(ctx, id)
	if err != nil {
		return fmt.Errorf("reload mode: %w", err)
	}
	m.mu.Lock()
	m.modes[id] = *md
	m.mu.Unlock()
	return nil
}

// ChangeToMode arms the sensors of the named mode, disarms all others and
// persists the resulting sensor and zone state.
func (m *Manager) ChangeToMode(ctx context.Context, name string) error {
	md, ok := m.ModeByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModeNotFound, name)
	}
	m.sensors.ApplyArmed(md.SensorIDs)
	if err := m.syncAndPersist(ctx); err != nil {
		return err
	}
	slog.Info("safehome mode changed", "mode", md.Name, "armed_sensors", len(md.SensorIDs))
	return nil
}

// Zone returns the zone with the given id.
func (m *Manager) Zone(id int64) (storage.SafetyZone, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zones[id]
	return z, ok
}

// Zones returns every zone ordered by id.
func (m *Manager) Zones() []storage.SafetyZone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zoneListLocked()
}

func (m *Manager) zoneListLocked() []storage.SafetyZone {
	out := make([]storage.SafetyZone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// checkZone validates z against the other zones. exclude is the id of the
// zone being updated, or 0.
func (m *Manager) checkZone(z storage.SafetyZone, exclude int64) error {
	if strings.TrimSpace(z.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidZone)
	}
	r := ZoneRect(z)
	if !r.Valid() {
		return fmt.Errorf("%w: corners must satisfy x1 <= x2 and y1 <= y2", ErrInvalidZone)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, other := range m.zones {
		if other.ID == exclude {
			continue
		}
		if strings.EqualFold(other.Name, z.Name) {
			return fmt.Errorf("%w: %s", ErrZoneExists, z.Name)
		}
		if r.Overlaps(ZoneRect(other)) {
			return fmt.Errorf("%w: %s", ErrZoneOverlap, other.Name)
		}
	}
	return nil
}

// AddZone creates a zone. When z carries no sensors, membership is derived
// from the floor plan geometry.
func (m *Manager) AddZone(ctx context.Context, z storage.SafetyZone) (storage.SafetyZone, error) {
	if err := m.checkZone(z, 0); err != nil {
		return storage.SafetyZone{}, err
	}
	if len(z.SensorIDs) == 0 && m.sensors != nil {
		z.SensorIDs = SensorsInRect(m.sensors.List(), ZoneRect(z))
	}
	z.ID = 0
	id, err := m.store.InsertZone(ctx, z)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.SafetyZone{}, fmt.Errorf("%w: %s", ErrZoneExists, z.Name)
		}
		return storage.SafetyZone{}, fmt.Errorf("insert zone: %w", err)
	}
	if err := m.reloadZone(ctx, id); err != nil {
		return storage.SafetyZone{}, err
	}
	created, _ := m.Zone(id)
	slog.Info("safety zone added", "zone", created.Name, "sensors", len(created.SensorIDs))
	return created, nil
}

// UpdateZone changes an existing zone. A nil SensorIDs keeps the current
// membership.
func (m *Manager) UpdateZone(ctx context.Context, z storage.SafetyZone) error {
	if _, ok := m.Zone(z.ID); !ok {
		return ErrZoneNotFound
	}
	if err := m.checkZone(z, z.ID); err != nil {
		return err
	}
	if err := m.store.UpdateZone(ctx, z); err != nil {
		return fmt.Errorf("update zone: %w", err)
	}
	if z.SensorIDs != nil {
		if err := m.store.SetZoneSensors(ctx, z.ID, z.SensorIDs); err != nil {
			return fmt.Errorf("update zone sensors: %w", err)
		}
	}
	return m.reloadZone(ctx, z.ID)
}

// DeleteZone removes a zone.
func (m *Manager) DeleteZone(ctx context.Context, id int64) error {
	if err := m.store.DeleteZone(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrZoneNotFound
		}
		return fmt.Errorf("delete zone: %w", err)
	}
	m.mu.Lock()
	delete(m.zones, id)
	m.mu.Unlock()
	return nil
}

func (m *Manager) reloadZone(ctx context.Context, id int64) error {
	z, err := m.store.GetZone(ctx, id)
	if err != nil {
		return fmt.Errorf("reload zone: %w", err)
	}
	m.mu.Lock()
	m.zones[id] = *z
	m.mu.Unlock()
	return nil
}

// ArmZone arms every sensor of a zone.
func (m *Manager) ArmZone(ctx context.Context, id int64) error {
	z, ok := m.Zone(id)
	if !ok {
		return ErrZoneNotFound
	}
	m.sensors.ArmMany(z.SensorIDs)
	return m.syncAndPersist(ctx)
}

// DisarmZone disarms the sensors of a zone. Window/door sensors are always
// disarmed. A motion detector stays armed while another armed zone contains
// it and that zone has other armed sensors.
func (m *Manager) DisarmZone(ctx context.Context, id int64) error {
	z, ok := m.Zone(id)
	if !ok {
		return ErrZoneNotFound
	}
	for _, sid := range z.SensorIDs {
		s, ok := m.sensors.Get(sid)
		if !ok {
			continue
		}
		if !s.IsMotion() || !m.neededByOtherZones(sid, id) {
			m.sensors.Disarm(sid)
		}
	}
	return m.syncAndPersist(ctx)
}

func (m *Manager) neededByOtherZones(sensorID, excludeZone int64) bool {
	for _, z := range m.Zones() {
		if z.ID == excludeZone || !z.Armed || !containsID(z.SensorIDs, sensorID) {
			continue
		}
		if m.hasArmedSensor(z, sensorID) {
			return true
		}
	}
	return false
}

// hasArmedSensor reports whether any sensor of z other than exclude is
// armed. exclude 0 considers every sensor.
func (m *Manager) hasArmedSensor(z storage.SafetyZone, exclude int64) bool {
	for _, sid := range z.SensorIDs {
		if sid == exclude {
			continue
		}
		if s, ok := m.sensors.Get(sid); ok && s.Armed {
			return true
		}
	}
	return false
}

// SyncZoneArmState marks a zone armed exactly when one of its sensors is.
func (m *Manager) SyncZoneArmState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, z := range m.zones {
		z.Armed = m.hasArmedSensor(z, 0)
		m.zones[id] = z
	}
}

// SaveState syncs the zone arm state with the sensors and stores both.
func (m *Manager) SaveState(ctx context.Context) error {
	return m.syncAndPersist(ctx)
}

func (m *Manager) syncAndPersist(ctx context.Context) error {
	m.SyncZoneArmState()
	if err := m.sensors.Save(ctx); err != nil {
		return err
	}
	for _, z := range m.Zones() {
		keep := z
		keep.SensorIDs = nil
		if err := m.store.UpdateZone(ctx, keep); err != nil {
			return fmt.Errorf("save zone %d: %w", z.ID, err)
		}
	}
	return nil
}

// AssignSensorsByGeometry recomputes the membership of every zone from the
// sensor positions and stores it.
func (m *Manager) AssignSensorsByGeometry(ctx context.Context) error {
	sensors := m.sensors.List()
	for _, z := range m.Zones() {
		ids := SensorsInRect(sensors, ZoneRect(z))
		if err := m.store.SetZoneSensors(ctx, z.ID, ids); err != nil {
			return fmt.Errorf("assign zone %d: %w", z.ID, err)
		}
		if err := m.reloadZone(ctx, z.ID); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
