// Package system wires the SafeHome managers together and owns the power
// cycle and the intrusion response.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/safehome/safehome/internal/alarm"
	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/camera"
	"github.com/safehome/safehome/internal/configuration"
	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
)

// DefaultCallDelay is the countdown between an intrusion and the external
// call.
const DefaultCallDelay = 30 * time.Second

// ErrOff is returned by operations that need the system turned on.
var ErrOff = errors.New("system: turned off")

// Store is the persistence the system runs on.
type Store interface {
	storage.Store

	// Reset recreates the schema and reloads the initial data.
	Reset(ctx context.Context) error
}

// Options configures a System. Zero values select defaults.
type Options struct {
	Logger        *slog.Logger
	Caller        alarm.Caller
	PollInterval  time.Duration
	CallDelay     time.Duration
	AlarmDuration time.Duration
}

// System is the SafeHome appliance.
type System struct {
	store  Store
	logger *slog.Logger
	caller alarm.Caller
	alarm  *alarm.Alarm

	pollInterval time.Duration
	callDelay    time.Duration

	// lifecycle serializes TurnOn, TurnOff and Reset.
	lifecycle sync.Mutex
	wg        sync.WaitGroup

	mu           sync.RWMutex
	on           bool
	runCtx       context.Context
	cancel       context.CancelFunc
	sensors      *sensor.Manager
	cameras      *camera.Manager
	config       *configuration.Manager
	login        *auth.LoginManager
	monitor      *sensor.Monitor
	callDeadline time.Time

	intrusionMu sync.Mutex
}

// New creates a System that is turned off.
func New(store Store, opts Options) *System {
	s := &System{
		store:        store,
		logger:       opts.Logger,
		caller:       opts.Caller,
		alarm:        alarm.New(opts.AlarmDuration),
		pollInterval: opts.PollInterval,
		callDelay:    opts.CallDelay,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.caller == nil {
		s.caller = alarm.LogCaller{Logger: s.logger}
	}
	if s.callDelay <= 0 {
		s.callDelay = DefaultCallDelay
	}
	return s
}

// TurnOn loads every manager from storage and starts the sensor monitor.
// Turning on a running system does nothing.
func (s *System) TurnOn(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.turnOn(ctx)
}

func (s *System) turnOn(ctx context.Context) error {
	if s.IsOn() {
		return nil
	}

	sensors, err := sensor.Load(ctx, s.store)
	if err != nil {
		return fmt.Errorf("turn on: %w", err)
	}
	cameras, err := camera.Load(ctx, s.store)
	if err != nil {
		return fmt.Errorf("turn on: %w", err)
	}
	config, err := configuration.Load(ctx, s.store, sensors)
	if err != nil {
		return fmt.Errorf("turn on: %w", err)
	}
	login := auth.NewLoginManager(s.store, s.store)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	monitor := sensor.NewMonitor(sensors, s.HandleIntrusion, s.pollInterval)

	s.mu.Lock()
	s.on = true
	s.runCtx, s.cancel = runCtx, cancel
	s.sensors, s.cameras, s.config, s.login = sensors, cameras, config, login
	s.monitor = monitor
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitor.Run(runCtx)
	}()

	s.logger.InfoContext(ctx, "system turned on",
		"sensors", len(sensors.IDs()),
		"cameras", len(cameras.List()),
		"zones", len(config.Zones()))
	return nil
}

// TurnOff stops the monitor, silences the alarm, logs both channels out and
// saves the sensor state.
func (s *System) TurnOff(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.turnOff(ctx)
}

func (s *System) turnOff(ctx context.Context) error {
	s.mu.Lock()
	if !s.on {
		s.mu.Unlock()
		return nil
	}
	s.on = false
	cancel, sensors, login := s.cancel, s.sensors, s.login
	s.mu.Unlock()

	cancel()
	s.alarm.Stop()
	s.wg.Wait()

	login.Logout(auth.ChannelWeb)
	login.Logout(auth.ChannelPanel)

	if err := sensors.Save(ctx); err != nil {
		return fmt.Errorf("turn off: %w", err)
	}
	s.logger.InfoContext(ctx, "system turned off")
	return nil
}

// Reset turns the system off, restores the initial database and turns it on
// again.
func (s *System) Reset(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.turnOff(ctx); err != nil {
		return err
	}
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	s.logger.WarnContext(ctx, "database reset to initial data")
	return s.turnOn(ctx)
}

// IsOn reports whether the system is turned on.
func (s *System) IsOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.on
}

// Sensors returns the sensor manager, or nil when the system is off.
func (s *System) Sensors() *sensor.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.on {
		return nil
	}
	return s.sensors
}

// Cameras returns the camera manager, or nil when the system is off.
func (s *System) Cameras() *camera.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.on {
		return nil
	}
	return s.cameras
}

// Configuration returns the configuration manager, or nil when the system
// is off.
func (s *System) Configuration() *configuration.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.on {
		return nil
	}
	return s.config
}

// Login returns the login manager, or nil when the system is off.
func (s *System) Login() *auth.LoginManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.on {
		return nil
	}
	return s.login
}

// Alarm returns the siren.
func (s *System) Alarm() *alarm.Alarm { return s.alarm }

// Store returns the underlying storage.
func (s *System) Store() Store { return s.store }

// MonitorStats returns the sensor monitor statistics. ok is false when the
// system is off.
func (s *System) MonitorStats() (stats sensor.MonitorStats, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.on {
		return sensor.MonitorStats{}, false
	}
	return s.monitor.Stats(), true
}
