package pipeline

import "github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"

type runStats struct {
	read, processed, skipped int
	readErrors, detectErrors int
}

// Summary describes a finished run.
type Summary struct {
	FPS      float64 `json:"fps"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Frames   int     `json:"frames"`
	Duration float64 `json:"duration_s"`

	FramesRead      int `json:"total_frames_read"`
	FramesSkipped   int `json:"frames_skipped"`
	FramesProcessed int `json:"frames_processed"`
	ReadErrors      int `json:"read_errors"`
	DetectErrors    int `json:"detect_errors"`
	// ProcessingEfficiency is processed/read in percent, one decimal.
	ProcessingEfficiency float64 `json:"processing_efficiency"`

	Sampling SamplingSummary `json:"adaptive_sampling"`
}

// SamplingSummary is the sampler's view of the run, or the fixed stride.
type SamplingSummary struct {
	Enabled bool   `json:"enabled"`
	Session string `json:"session,omitempty"`

	FramesProcessed int     `json:"frames_processed,omitempty"`
	FramesSkipped   int     `json:"frames_skipped,omitempty"`
	ProcessingRatio float64 `json:"processing_ratio,omitempty"`
	AvgMotionScore  float64 `json:"avg_motion_score,omitempty"`
	IDSwitches      int     `json:"id_switches,omitempty"`
	LockEvents      int     `json:"lock_events,omitempty"`
	EfficiencyScore float64 `json:"efficiency_score,omitempty"`
	LastReason      string  `json:"last_reason,omitempty"`

	FixedStride int `json:"fixed_stride,omitempty"`
}

func (r *Runner) summarize(st runStats) Summary {
	s := Summary{
		FPS:                  sampling.Round(r.meta.FPS, 2),
		Width:                r.meta.Width,
		Height:               r.meta.Height,
		Frames:               st.read,
		Duration:             sampling.Round(float64(st.read)/r.meta.FPS, 3),
		FramesRead:           st.read,
		FramesSkipped:        st.skipped,
		FramesProcessed:      st.processed,
		ReadErrors:           st.readErrors,
		DetectErrors:         st.detectErrors,
		ProcessingEfficiency: efficiency(st.processed, st.read),
	}

	if r.sampler == nil {
		s.Sampling = SamplingSummary{FixedStride: r.opts.FixedStride}
		return s
	}

	m := r.sampler.Metrics()
	s.Sampling = SamplingSummary{
		Enabled:         true,
		Session:         r.Session(),
		FramesProcessed: m.FramesProcessed,
		FramesSkipped:   m.FramesSkipped,
		ProcessingRatio: sampling.Round(m.ProcessingRatio(), 2),
		AvgMotionScore:  sampling.Round(m.AvgMotionScore, 4),
		IDSwitches:      m.IDSwitches,
		LockEvents:      m.LockEvents,
		EfficiencyScore: sampling.Round(m.EfficiencyScore(), 2),
		LastReason:      m.LastReason.String(),
	}
	return s
}

func efficiency(processed, read int) float64 {
	if read == 0 {
		return 0
	}
	return sampling.Round(float64(processed)/float64(read)*100, 1)
}
