package webmonitor

import (
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"
)

// Monitor keeps the latest sampling status and a mirror of the telemetry log.
// The sampler itself is owned by the pipeline goroutine, so HTTP handlers
// only ever read this copy.
type Monitor struct {
	startTime time.Time
	now       func() time.Time

	mu        sync.Mutex
	latest    *Status
	session   string
	events    int
	telemetry *sampling.TelemetryLog
}

// NewMonitor creates a Monitor whose telemetry mirror holds telemetryEvents events.
func NewMonitor(telemetryEvents int) *Monitor {
	return &Monitor{
		startTime: time.Now(),
		now:       time.Now,
		telemetry: sampling.NewTelemetryLog(telemetryEvents),
	}
}

// Update folds a pipeline event and returns the resulting status.
// A new session clears the telemetry mirror.
func (m *Monitor) Update(ev pipeline.Event) Status {
	status := Status{
		Session:   ev.Session,
		Decision:  ev.Payload,
		Metrics:   newMetricsSnapshot(ev.Metrics),
		Tracks:    len(ev.Tracks),
		LatencyUs: ev.Latency.Microseconds(),
		Timestamp: float64(m.now().UnixNano()) / 1e9,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Session != m.session {
		m.telemetry.Reset()
		m.session = ev.Session
	}
	m.telemetry.Append(ev.Telemetry)
	m.events++
	m.latest = &status
	return status
}

// Snapshot returns the latest status, false before the first event.
func (m *Monitor) Snapshot() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return Status{}, false
	}
	return *m.latest, true
}

// Telemetry returns the mirrored events at or after since.
func (m *Monitor) Telemetry(since time.Time) TelemetryResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.telemetry.Since(since)
	if events == nil {
		events = []sampling.TelemetryEvent{}
	}
	return TelemetryResponse{Session: m.session, Count: len(events), Events: events}
}

// Events is the number of pipeline events seen.
func (m *Monitor) Events() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Uptime since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}
