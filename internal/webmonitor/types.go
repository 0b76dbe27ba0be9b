package webmonitor

import "github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"

// MetricsSnapshot is the rounded sampler metrics shape used by the UI.
type MetricsSnapshot struct {
	FramesProcessed int     `json:"frames_processed"`
	FramesSkipped   int     `json:"frames_skipped"`
	TotalFrames     int     `json:"total_frames"`
	CurrentInterval int     `json:"current_interval"`
	ProcessingRatio float64 `json:"processing_ratio"`
	AvgMotionScore  float64 `json:"avg_motion_score"`
	EfficiencyScore float64 `json:"efficiency_score"`
	DetectionCount  int     `json:"detection_count"`
	IDSwitches      int     `json:"id_switches"`
	LockEvents      int     `json:"lock_events"`
	LastReason      string  `json:"last_reason"`
}

func newMetricsSnapshot(m sampling.Metrics) MetricsSnapshot {
	return MetricsSnapshot{
		FramesProcessed: m.FramesProcessed,
		FramesSkipped:   m.FramesSkipped,
		TotalFrames:     m.TotalFrames,
		CurrentInterval: m.CurrentInterval,
		ProcessingRatio: sampling.Round(m.ProcessingRatio(), 2),
		AvgMotionScore:  sampling.Round(m.AvgMotionScore, 4),
		EfficiencyScore: sampling.Round(m.EfficiencyScore(), 2),
		DetectionCount:  m.DetectionCount,
		IDSwitches:      m.IDSwitches,
		LockEvents:      m.LockEvents,
		LastReason:      m.LastReason.String(),
	}
}

// Status is the payload for /api/sampling/status and /api/sampling/stream.
type Status struct {
	Session   string           `json:"session"`
	Decision  sampling.Payload `json:"decision"`
	Metrics   MetricsSnapshot  `json:"metrics"`
	Tracks    int              `json:"tracks"`
	LatencyUs int64            `json:"latency_us"`
	Timestamp float64          `json:"timestamp"`
}

// TelemetryResponse is the payload for /api/sampling/telemetry.
type TelemetryResponse struct {
	Session string                    `json:"session"`
	Count   int                       `json:"count"`
	Events  []sampling.TelemetryEvent `json:"events"`
}
