package storage

import (
	"strings"
	"time"
)

// Level represents log severity levels as stored in the logs table.
type Level uint8

const (
	LevelUnknown Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// String returns the level name used by the logs.level CHECK constraint.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarning
	case "ERROR":
		return LevelError
	case "CRITICAL", "FATAL":
		return LevelCritical
	default:
		return LevelUnknown
	}
}

// LogRecord is a single row of the logs table.
type LogRecord struct {
	// ID is assigned by storage. Zero means not persisted yet.
	ID        int64
	Timestamp time.Time
	Level     Level

	// Source location that produced the record.
	Filename     string
	FunctionName string
	LineNumber   int

	Message string
}

// LogQuery defines parameters for listing logs.
// Zero values mean "no filter" for that field.
type LogQuery struct {
	// Level filter (exact match).
	Level Level

	// Time range (Since inclusive, Until exclusive).
	Since time.Time
	Until time.Time

	// AfterID selects records with a larger log_id and returns them in
	// ascending id order, oldest stored first.
	AfterID int64

	// Limit is the maximum number of records to return.
	// Zero means use default.
	Limit int
}

// Role is a user role.
type Role string

const (
	RoleHomeowner Role = "HOMEOWNER"
	RoleGuest     Role = "GUEST"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleHomeowner || r == RoleGuest
}

// User is a row of the users table. Empty strings are stored as NULL.
type User struct {
	UserID        string
	Role          Role
	PanelID       string
	PanelPassword string
	WebID         string
	WebPassword   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserUpdate lists the updatable user columns. Nil fields are left unchanged;
// a pointer to an empty string sets the column to NULL.
type UserUpdate struct {
	Role          *Role
	PanelID       *string
	PanelPassword *string
	WebID         *string
	WebPassword   *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Role == nil && u.PanelID == nil && u.PanelPassword == nil &&
		u.WebID == nil && u.WebPassword == nil
}

// SystemSettings is a row of the system_settings table.
// Nil pointers are stored as NULL.
type SystemSettings struct {
	ID                   int64
	PanicPhoneNumber     string
	HomeownerPhoneNumber string
	// SystemLockTime is in minutes.
	SystemLockTime *int
	// AlarmDelayTime is in minutes.
	AlarmDelayTime *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultSettingsID is the id of the singleton settings row.
const DefaultSettingsID int64 = 1

// SensorType is the sensors.sensor_type column.
type SensorType int

const (
	SensorWindowDoor SensorType = 1
	SensorMotion     SensorType = 2
)

// String returns the sensor type name.
func (t SensorType) String() string {
	switch t {
	case SensorWindowDoor:
		return "WINDOOR_SENSOR"
	case SensorMotion:
		return "MOTION_DETECTOR_SENSOR"
	default:
		return "UNKNOWN_SENSOR"
	}
}

// Sensor is a row of the sensors table. Window/door sensors are points; motion
// detectors are segments from (X, Y) to (X2, Y2).
type Sensor struct {
	ID        int64
	Type      SensorType
	X, Y      int
	X2, Y2    *int
	Armed     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Camera is a row of the cameras table.
type Camera struct {
	ID          int64
	X, Y        int
	Pan         int
	Zoom        int
	HasPassword bool
	Password    string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SafetyZone is a row of the safety_zones table plus its sensor membership.
type SafetyZone struct {
	ID        int64
	Name      string
	X1, Y1    float64
	X2, Y2    float64
	Armed     bool
	SensorIDs []int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SafeHomeMode is a row of the safehome_modes table plus its sensor set.
type SafeHomeMode struct {
	ID        int64
	Name      string
	SensorIDs []int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
