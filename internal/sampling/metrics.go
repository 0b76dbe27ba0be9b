package sampling

import "time"

// Metrics are the running counters of one session. Counters never decrease
// until Reset.
type Metrics struct {
	FramesProcessed int           `json:"frames_processed"`
	FramesSkipped   int           `json:"frames_skipped"`
	TotalFrames     int           `json:"total_frames"`
	CurrentInterval int           `json:"current_interval"`
	AvgMotionScore  float64       `json:"avg_motion_score"`
	DetectionCount  int           `json:"detection_count"`
	IDSwitches      int           `json:"id_switches"`
	LockEvents      int           `json:"lock_events"`
	ProcessingTime  time.Duration `json:"processing_time_ns"`
	LastReason      Reason        `json:"last_reason"`
}

func newMetrics(cfg Config) Metrics {
	return Metrics{CurrentInterval: cfg.DefaultInterval, LastReason: ReasonInitialization}
}

// ProcessingRatio is the percentage of frames that were processed, 0 before
// any frame was seen.
func (m Metrics) ProcessingRatio() float64 {
	if m.TotalFrames == 0 {
		return 0
	}
	return float64(m.FramesProcessed) / float64(m.TotalFrames) * 100
}

// EfficiencyScore is the mean number of detections per processed frame.
func (m Metrics) EfficiencyScore() float64 {
	if m.FramesProcessed == 0 {
		return 0
	}
	return float64(m.DetectionCount) / float64(m.FramesProcessed)
}

// Evaluated is the number of decisions made so far.
func (m Metrics) Evaluated() int {
	return m.FramesProcessed + m.FramesSkipped
}

// observe folds one decision into the counters. detections is the size of
// the list supplied with the call.
func (m *Metrics) observe(d Decision, detections int) {
	if d.FrameIndex+1 > m.TotalFrames {
		m.TotalFrames = d.FrameIndex + 1
	}
	m.CurrentInterval = d.Interval
	m.LastReason = d.Reason
	if d.ShouldProcess {
		m.FramesProcessed++
		m.DetectionCount += detections
	} else {
		m.FramesSkipped++
	}
}
