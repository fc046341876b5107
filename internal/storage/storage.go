package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Common errors returned by storage implementations.
var (
	ErrNotFound      = errors.New("storage: entry not found")
	ErrStorageClosed = errors.New("storage: storage is closed")
	ErrAlreadyExists = errors.New("storage: entry already exists")
	ErrConstraint    = errors.New("storage: constraint violation")
)

// UserStore persists users.
type UserStore interface {
	// InsertUser creates a user. Returns ErrAlreadyExists on duplicate ids
	// and ErrConstraint when the role/credential combination is rejected.
	InsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByPanelID(ctx context.Context, panelID string) (*User, error)
	GetUserByWebID(ctx context.Context, webID string) (*User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) error
	DeleteUser(ctx context.Context, userID string) error
}

// LogStore persists log records.
type LogStore interface {
	InsertLog(ctx context.Context, rec LogRecord) (int64, error)

	// QueryLogs returns matching records, newest first.
	QueryLogs(ctx context.Context, q LogQuery) ([]LogRecord, error)

	// DeleteLogsBefore removes records older than the given timestamp.
	// Returns the number of records deleted.
	DeleteLogsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// SettingsStore persists system settings.
type SettingsStore interface {
	InsertSystemSettings(ctx context.Context, s SystemSettings) (int64, error)
	GetSystemSettings(ctx context.Context, id int64) (*SystemSettings, error)
	UpdateSystemSettings(ctx context.Context, s SystemSettings) error
	DeleteSystemSettings(ctx context.Context, id int64) error
}

// SensorStore persists sensors.
type SensorStore interface {
	ListSensors(ctx context.Context) ([]Sensor, error)
	GetSensor(ctx context.Context, id int64) (*Sensor, error)
	UpdateSensor(ctx context.Context, s Sensor) error
}

// CameraStore persists cameras.
type CameraStore interface {
	ListCameras(ctx context.Context) ([]Camera, error)
	GetCamera(ctx context.Context, id int64) (*Camera, error)
	InsertCamera(ctx context.Context, c Camera) (int64, error)
	UpdateCamera(ctx context.Context, c Camera) error
	DeleteCamera(ctx context.Context, id int64) error
}

// ZoneStore persists safety zones and their sensor membership.
type ZoneStore interface {
	ListZones(ctx context.Context) ([]SafetyZone, error)
	GetZone(ctx context.Context, id int64) (*SafetyZone, error)
	GetZoneByName(ctx context.Context, name string) (*SafetyZone, error)
	InsertZone(ctx context.Context, z SafetyZone) (int64, error)
	UpdateZone(ctx context.Context, z SafetyZone) error
	DeleteZone(ctx context.Context, id int64) error

	// SetZoneSensors replaces the sensor membership of a zone.
	SetZoneSensors(ctx context.Context, zoneID int64, sensorIDs []int64) error
}

// ModeStore persists SafeHome modes and their sensor sets.
type ModeStore interface {
	ListModes(ctx context.Context) ([]SafeHomeMode, error)
	GetMode(ctx context.Context, id int64) (*SafeHomeMode, error)
	GetModeByName(ctx context.Context, name string) (*SafeHomeMode, error)

	// ModeSensors returns the sensor ids of a mode in ascending order.
	ModeSensors(ctx context.Context, modeID int64) ([]int64, error)

	InsertMode(ctx context.Context, name string, sensorIDs []int64) (int64, error)
	UpdateMode(ctx context.Context, m SafeHomeMode) error

	// DeleteMode removes the mode; its sensor links are removed by cascade.
	DeleteMode(ctx context.Context, id int64) error
}

// Store defines the full SafeHome persistence interface.
// Implementations must be safe for concurrent use.
type Store interface {
	UserStore
	LogStore
	SettingsStore
	SensorStore
	CameraStore
	ZoneStore
	ModeStore

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases resources.
	io.Closer
}

// Stats contains storage statistics.
type Stats struct {
	Users         int64
	Logs          int64
	Sensors       int64
	Cameras       int64
	Zones         int64
	Modes         int64
	DiskSizeBytes int64
	OldestLog     time.Time
	NewestLog     time.Time
}
