package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/safehome/safehome/internal/alarm"
	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/system"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SAFEHOME_"

// Config holds server configuration.
type Config struct {
	// HTTPAddr is the JSON API listen address.
	// Default: ":8080"
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`

	// GRPCAddr is the gRPC health and reflection listen address. Empty
	// disables the gRPC listener.
	// Default: ":50051"
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`

	// DBPath is the path to the SQLite database file.
	// Default: "safehome.db"
	DBPath string `yaml:"db_path" env:"DB_PATH"`

	// LogFile receives a copy of every log line when set.
	LogFile string `yaml:"log_file" env:"LOG_FILE"`

	// LogLevel is the minimum level written to the log table.
	// Default: "info"
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// RetentionDays is the number of days to retain logs.
	// 0 means disabled (no automatic deletion).
	// Default: 0 (disabled)
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS"`

	// RetentionInterval is how often the cleanup cycle runs.
	// Default: 1 hour
	RetentionInterval time.Duration `yaml:"retention_interval" env:"RETENTION_INTERVAL"`

	// SessionDuration is the lifetime of a web session.
	// Default: 24 hours
	SessionDuration time.Duration `yaml:"session_duration" env:"SESSION_DURATION"`

	// JWTSecret signs session tokens. A random secret is generated at
	// startup when empty, which invalidates tokens on restart.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`

	// CookieName is the session cookie name.
	// Default: "safehome_session"
	CookieName string `yaml:"cookie_name" env:"COOKIE_NAME"`

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool `yaml:"cookie_secure" env:"COOKIE_SECURE"`

	// CORSOrigins lists the origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`

	// PollInterval is how often armed sensors are read.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`

	// CallDelay is the countdown between an intrusion and the external call.
	CallDelay time.Duration `yaml:"call_delay" env:"CALL_DELAY"`

	// AlarmDuration is how long the siren rings unless stopped.
	AlarmDuration time.Duration `yaml:"alarm_duration" env:"ALARM_DURATION"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          ":8080",
		GRPCAddr:          ":50051",
		DBPath:            "safehome.db",
		LogLevel:          "info",
		RetentionDays:     0,
		RetentionInterval: time.Hour,
		SessionDuration:   24 * time.Hour,
		CookieName:        "safehome_session",
		CORSOrigins:       []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		PollInterval:      sensor.DefaultPollInterval,
		CallDelay:         system.DefaultCallDelay,
		AlarmDuration:     alarm.DefaultDuration,
	}
}

// Load builds a Config from the defaults, an optional YAML file, a .env file
// in the working directory and SAFEHOME_ environment variables, in that
// order of precedence from lowest to highest.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}

	if err := ConfigFromEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// loadDotEnv exports the variables of file without overriding the ones
// already set. A missing file is not an error.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// ConfigFromEnv overrides cfg with the SAFEHOME_ environment variables.
func ConfigFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return errors.New("config: http_addr is required")
	case c.DBPath == "":
		return errors.New("config: db_path is required")
	case storage.ParseLevel(c.LogLevel) == storage.LevelUnknown:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	case c.RetentionDays < 0:
		return errors.New("config: retention_days must not be negative")
	case c.RetentionInterval <= 0:
		return errors.New("config: retention_interval must be positive")
	case c.SessionDuration <= 0:
		return errors.New("config: session_duration must be positive")
	case c.CookieName == "":
		return errors.New("config: cookie_name is required")
	case c.PollInterval <= 0:
		return errors.New("config: poll_interval must be positive")
	case c.CallDelay <= 0:
		return errors.New("config: call_delay must be positive")
	case c.AlarmDuration <= 0:
		return errors.New("config: alarm_duration must be positive")
	}
	return nil
}

// RetentionEnabled returns true if log retention is configured.
func (c Config) RetentionEnabled() bool {
	return c.RetentionDays > 0
}

// RetentionCutoff returns the time before which logs should be deleted.
func (c Config) RetentionCutoff() time.Time {
	return time.Now().Add(-time.Duration(c.RetentionDays) * 24 * time.Hour)
}

// SystemOptions returns the appliance timings of c.
func (c Config) SystemOptions() system.Options {
	return system.Options{
		PollInterval:  c.PollInterval,
		CallDelay:     c.CallDelay,
		AlarmDuration: c.AlarmDuration,
	}
}
