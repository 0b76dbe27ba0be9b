package sampling

import "time"

// DefaultMaxTelemetryEvents is the telemetry capacity used by DefaultConfig.
const DefaultMaxTelemetryEvents = 1000

// TelemetryEvent records one decision for later inspection.
type TelemetryEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	FrameIndex      int       `json:"frame_idx"`
	Reason          Reason    `json:"reason"`
	Interval        int       `json:"interval"`
	Processed       bool      `json:"processed"`
	MotionScore     float64   `json:"motion_score"`
	DetectionCount  int       `json:"detection_count"`
	ProcessingRatio float64   `json:"processing_ratio"`
}

// TelemetryLog keeps the most recent events in insertion order, evicting
// the oldest once full.
type TelemetryLog struct {
	events  *ring[TelemetryEvent]
	evicted int
}

// NewTelemetryLog returns a log holding at most capacity events.
func NewTelemetryLog(capacity int) *TelemetryLog {
	if capacity < 1 {
		capacity = DefaultMaxTelemetryEvents
	}
	return &TelemetryLog{events: newRing[TelemetryEvent](capacity)}
}

// Append stores ev, evicting the oldest event when the log is full.
func (l *TelemetryLog) Append(ev TelemetryEvent) {
	if l.events.Push(ev) {
		l.evicted++
	}
}

func (l *TelemetryLog) Len() int     { return l.events.Len() }
func (l *TelemetryLog) Cap() int     { return l.events.Cap() }
func (l *TelemetryLog) Evicted() int { return l.evicted }

// Last returns the newest event.
func (l *TelemetryLog) Last() (TelemetryEvent, bool) {
	if l.events.Len() == 0 {
		return TelemetryEvent{}, false
	}
	return l.events.At(l.events.Len() - 1), true
}

// Events returns a copy of every stored event, oldest first.
func (l *TelemetryLog) Events() []TelemetryEvent {
	return l.events.Slice()
}

// Since returns the stored events with a timestamp at or after t, in
// insertion order. A zero t returns everything.
func (l *TelemetryLog) Since(t time.Time) []TelemetryEvent {
	if t.IsZero() {
		return l.Events()
	}
	var out []TelemetryEvent
	l.events.Do(func(ev TelemetryEvent) {
		if !ev.Timestamp.Before(t) {
			out = append(out, ev)
		}
	})
	return out
}

// Resize changes the capacity, keeping the newest events.
func (l *TelemetryLog) Resize(capacity int) {
	if capacity < 1 {
		capacity = DefaultMaxTelemetryEvents
	}
	if drop := l.events.Len() - capacity; drop > 0 {
		l.evicted += drop
	}
	l.events.Resize(capacity)
}

// Reset empties the log.
func (l *TelemetryLog) Reset() {
	l.events.Reset()
	l.evicted = 0
}
