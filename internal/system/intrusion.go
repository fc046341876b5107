package system

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safehome/safehome/internal/logging"
	"github.com/safehome/safehome/internal/sensor"
	"github.com/safehome/safehome/internal/storage"
)

// HandleIntrusion responds to an armed sensor reading an intrusion: it logs
// a critical event, rings the alarm and schedules the external call. While
// the alarm rings further intrusions are ignored.
func (s *System) HandleIntrusion(ctx context.Context, sn sensor.Sensor) {
	s.intrusionMu.Lock()
	defer s.intrusionMu.Unlock()

	if s.alarm.IsRinging() {
		return
	}
	s.mu.RLock()
	on, runCtx := s.on, s.runCtx
	s.mu.RUnlock()
	if !on {
		return
	}

	eventID := uuid.NewString()
	logging.Critical(ctx, s.logger,
		fmt.Sprintf("INTRUSION DETECTED: Sensor %d (Type: %s) triggered!", sn.ID, sn.Type),
		"event_id", eventID)

	stopped := s.alarm.Ring()
	deadline := time.Now().Add(s.callDelay)

	s.mu.Lock()
	s.callDeadline = deadline
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.countdown(runCtx, stopped, eventID)
	}()
}

func (s *System) countdown(ctx context.Context, stopped <-chan struct{}, eventID string) {
	timer := time.NewTimer(s.callDelay)
	defer timer.Stop()
	defer func() {
		s.mu.Lock()
		s.callDeadline = time.Time{}
		s.mu.Unlock()
	}()

	select {
	case <-timer.C:
		called := s.ExternalCall(ctx)
		if len(called) == 0 {
			s.logger.ErrorContext(ctx, "external call failed", "event_id", eventID)
			return
		}
		s.logger.WarnContext(ctx, "external call placed", "event_id", eventID, "numbers", called)
	case <-stopped:
		s.logger.InfoContext(ctx, "external call cancelled", "event_id", eventID)
	case <-ctx.Done():
	}
}

// CallCountdown returns the time left before the scheduled external call,
// or zero when none is pending.
func (s *System) CallCountdown() time.Duration {
	s.mu.RLock()
	deadline := s.callDeadline
	s.mu.RUnlock()
	if deadline.IsZero() {
		return 0
	}
	return max(time.Until(deadline), 0)
}

// StopAlarm silences the alarm, which also cancels a pending external call.
func (s *System) StopAlarm() {
	s.alarm.Stop()
}

// ExternalCall dials the panic and homeowner numbers and returns the
// numbers that were reached.
func (s *System) ExternalCall(ctx context.Context) []string {
	settings, err := s.currentSettings(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load settings for external call", "error", err)
		return nil
	}

	var called []string
	for _, number := range []string{settings.PanicPhoneNumber, settings.HomeownerPhoneNumber} {
		if number == "" {
			continue
		}
		if s.caller.Call(ctx, number) {
			called = append(called, number)
		}
	}
	return called
}

func (s *System) currentSettings(ctx context.Context) (storage.SystemSettings, error) {
	if cfg := s.Configuration(); cfg != nil {
		return cfg.Settings(), nil
	}
	set, err := s.store.GetSystemSettings(ctx, storage.DefaultSettingsID)
	if err != nil {
		return storage.SystemSettings{}, err
	}
	return *set, nil
}
