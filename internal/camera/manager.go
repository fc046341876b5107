package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

var (
	ErrNotFound       = errors.New("camera: camera not found")
	ErrInvalidControl = errors.New("camera: invalid control")
	ErrAtLimit        = errors.New("camera: already at pan/zoom limit")
)

// Manager owns the camera set and persists every change to the store.
type Manager struct {
	store storage.CameraStore

	mu      sync.RWMutex
	cameras map[int64]*Camera
	maxID   int64
}

// Load reads every camera from store.
func Load(ctx context.Context, store storage.CameraStore) (*Manager, error) {
	records, err := store.ListCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	m := &Manager{store: store, cameras: make(map[int64]*Camera, len(records))}
	for _, r := range records {
		c := FromRecord(r)
		m.cameras[c.ID] = &c
		m.maxID = max(m.maxID, c.ID)
	}
	return m, nil
}

// Get returns a copy of the camera with the given id.
func (m *Manager) Get(id int64) (Camera, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cameras[id]
	if !ok {
		return Camera{}, false
	}
	return *c, true
}

// List returns copies of every camera ordered by id.
func (m *Manager) List() []Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Camera, 0, len(m.cameras))
	for _, c := range m.cameras {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) allIDs() []int64 {
	list := m.List()
	ids := make([]int64, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	return ids
}

// mutate applies fn to copies of the cameras in ids and persists them. The
// in-memory set changes only once every copy is stored. When a store write
// fails the cameras already written are put back.
func (m *Manager) mutate(ctx context.Context, ids []int64, fn func(*Camera)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make([]Camera, 0, len(ids))
	for _, id := range ids {
		c, ok := m.cameras[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		next := *c
		fn(&next)
		staged = append(staged, next)
	}
	for i, c := range staged {
		if err := m.store.UpdateCamera(ctx, c.Record()); err != nil {
			m.restore(ctx, staged[:i])
			return fmt.Errorf("save camera %d: %w", c.ID, err)
		}
	}
	for _, c := range staged {
		*m.cameras[c.ID] = c
	}
	return nil
}

// restore writes the in-memory state of written back to the store.
func (m *Manager) restore(ctx context.Context, written []Camera) {
	for _, c := range written {
		if err := m.store.UpdateCamera(ctx, m.cameras[c.ID].Record()); err != nil {
			slog.Error("failed to restore camera", "camera", c.ID, "error", err)
		}
	}
}

func enable(c *Camera)  { c.Enabled = true }
func disable(c *Camera) { c.Enabled = false }

// Enable enables one camera.
func (m *Manager) Enable(ctx context.Context, id int64) error {
	return m.mutate(ctx, []int64{id}, enable)
}

// Disable disables one camera.
func (m *Manager) Disable(ctx context.Context, id int64) error {
	return m.mutate(ctx, []int64{id}, disable)
}

// EnableMany enables the given cameras, or none if any id is unknown.
func (m *Manager) EnableMany(ctx context.Context, ids []int64) error {
	return m.mutate(ctx, ids, enable)
}

// DisableMany disables the given cameras, or none if any id is unknown.
func (m *Manager) DisableMany(ctx context.Context, ids []int64) error {
	return m.mutate(ctx, ids, disable)
}

// EnableAll enables every camera.
func (m *Manager) EnableAll(ctx context.Context) error {
	return m.mutate(ctx, m.allIDs(), enable)
}

// DisableAll disables every camera.
func (m *Manager) DisableAll(ctx context.Context) error {
	return m.mutate(ctx, m.allIDs(), disable)
}

// Control pans or zooms a camera. ErrAtLimit is returned when the camera
// cannot move further in that direction.
func (m *Manager) Control(ctx context.Context, id int64, ctl Control) error {
	if _, ok := ParseControl(string(ctl)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidControl, ctl)
	}
	moved := false
	err := m.mutate(ctx, []int64{id}, func(c *Camera) { moved = c.Apply(ctl) })
	if err != nil {
		return err
	}
	if !moved {
		return ErrAtLimit
	}
	return nil
}

// SetPassword sets the password of a camera. An empty password removes it.
func (m *Manager) SetPassword(ctx context.Context, id int64, password string) error {
	return m.mutate(ctx, []int64{id}, func(c *Camera) { c.SetPassword(password) })
}

// DeletePassword removes the password of a camera.
func (m *Manager) DeletePassword(ctx context.Context, id int64) error {
	return m.SetPassword(ctx, id, "")
}

// ValidatePassword checks password against the camera password.
func (m *Manager) ValidatePassword(id int64, password string) ValidationResult {
	c, ok := m.Get(id)
	if !ok {
		return InvalidID
	}
	return c.Check(password)
}

// Unlock unlocks the camera when password is correct.
func (m *Manager) Unlock(id int64, password string) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cameras[id]
	if !ok {
		return InvalidID
	}
	res := c.Check(password)
	if res == Valid || res == NoPassword {
		c.Locked = false
	}
	return res
}

// Lock locks a camera that has a password.
func (m *Manager) Lock(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cameras[id]
	if !ok || !c.HasPassword() {
		return false
	}
	c.Locked = true
	return true
}

// Add creates a disabled camera at (x, y) with the next free id.
func (m *Manager) Add(ctx context.Context, x, y int) (Camera, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Camera{ID: m.maxID + 1, X: x, Y: y, Zoom: MinZoom}
	if _, err := m.store.InsertCamera(ctx, c.Record()); err != nil {
		return Camera{}, fmt.Errorf("insert camera: %w", err)
	}
	m.cameras[c.ID] = &c
	m.maxID = c.ID
	slog.Info("camera added", "camera", c.ID, "x", x, "y", y)
	return c, nil
}

// Delete removes a camera.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := m.store.DeleteCamera(ctx, id); err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	delete(m.cameras, id)
	return nil
}

// View renders one camera.
func (m *Manager) View(id int64, now time.Time) (View, error) {
	c, ok := m.Get(id)
	if !ok {
		return View{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return c.View(now), nil
}

// Views renders every camera ordered by id.
func (m *Manager) Views(now time.Time) []View {
	list := m.List()
	out := make([]View, len(list))
	for i := range list {
		out[i] = list[i].View(now)
	}
	return out
}
