package sampling

import (
	"image"
	"math"
)

// Payload bundles one decision with a rounded metrics snapshot for
// reporting collaborators.
type Payload struct {
	FrameIndex      int     `json:"frame_idx"`
	ShouldProcess   bool    `json:"should_process"`
	Reason          string  `json:"reason"`
	CurrentInterval int     `json:"current_interval"`
	ProcessingRatio float64 `json:"processing_ratio"`
	FramesProcessed int     `json:"frames_processed"`
	FramesSkipped   int     `json:"frames_skipped"`
	AvgMotionScore  float64 `json:"avg_motion_score"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

// NewPayload rounds the metrics the way the reporting UI displays them.
func NewPayload(d Decision, m Metrics) Payload {
	return Payload{
		FrameIndex:      d.FrameIndex,
		ShouldProcess:   d.ShouldProcess,
		Reason:          d.Label(),
		CurrentInterval: m.CurrentInterval,
		ProcessingRatio: Round(m.ProcessingRatio(), 2),
		FramesProcessed: m.FramesProcessed,
		FramesSkipped:   m.FramesSkipped,
		AvgMotionScore:  Round(m.AvgMotionScore, 4),
		EfficiencyScore: Round(m.EfficiencyScore(), 2),
	}
}

// Integrate evaluates one frame of a detection pipeline and returns the
// decision together with its reporting payload.
func Integrate(s *Sampler, index int, frame image.Image, prevDetections []Detection, lockOn, seek bool) (Decision, Payload) {
	d := s.Evaluate(FrameInput{
		Index:      index,
		Frame:      frame,
		Detections: prevDetections,
		LockOn:     lockOn,
		Seek:       seek,
	})
	return d, NewPayload(d, s.Metrics())
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
