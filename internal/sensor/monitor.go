package sensor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often the monitor reads every sensor.
const DefaultPollInterval = time.Second

// IntrusionHandler is called for each armed sensor that reads an intrusion.
type IntrusionHandler func(ctx context.Context, s Sensor)

// Monitor periodically polls the sensors of a Manager.
type Monitor struct {
	sensors  *Manager
	handler  IntrusionHandler
	interval time.Duration

	totalPolls      atomic.Int64
	totalIntrusions atomic.Int64
	lastPollTime    atomic.Pointer[time.Time]
}

// MonitorStats contains monitor statistics.
type MonitorStats struct {
	TotalPolls      int64
	TotalIntrusions int64
	LastPollTime    time.Time
}

// NewMonitor creates a Monitor. A non-positive interval means
// DefaultPollInterval.
func NewMonitor(sensors *Manager, handler IntrusionHandler, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{sensors: sensors, handler: handler, interval: interval}
}

// Run polls until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("sensor monitor starting", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pollOnce(ctx)
		case <-ctx.Done():
			slog.Info("sensor monitor stopping")
			return
		}
	}
}

// pollOnce executes a single polling cycle.
func (m *Monitor) pollOnce(ctx context.Context) {
	m.totalPolls.Add(1)
	now := time.Now()
	m.lastPollTime.Store(&now)

	for _, s := range m.sensors.Detecting() {
		m.totalIntrusions.Add(1)
		slog.Debug("sensor detecting", "sensor", s.ID, "type", s.Type.String())
		if m.handler != nil {
			m.handler(ctx, s)
		}
	}
}

// Stats returns monitor statistics.
func (m *Monitor) Stats() MonitorStats {
	var last time.Time
	if p := m.lastPollTime.Load(); p != nil {
		last = *p
	}
	return MonitorStats{
		TotalPolls:      m.totalPolls.Load(),
		TotalIntrusions: m.totalIntrusions.Load(),
		LastPollTime:    last,
	}
}
