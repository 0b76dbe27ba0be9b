// Package sampling decides, frame by frame, whether a video frame should go
// through the expensive detection/tracking step.
//
// A Sampler is the per-video state machine. Each call to Evaluate combines
// the caller's override signals (seek, lock-on) and an identity-switch
// cooldown with an adaptive interval computed from motion, crowd-size
// volatility, identity churn and scene stability, then applies an
// elapsed-frames gate against the last processed frame.
//
// A Sampler is not safe for concurrent use. Run one instance per video and
// drive it from a single loop in increasing frame order.
package sampling

import (
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
)

// Detection is one result of the detector for the previously processed frame.
type Detection struct {
	// TrackID is nil when the tracker did not assign an identity.
	TrackID *int    `json:"id,omitempty"`
	Score   float64 `json:"score"`
	// Area is the box area normalized to the frame area.
	Area float64 `json:"box_area"`
}

// Tracked builds a detection carrying a track identity.
func Tracked(id int, score, area float64) Detection {
	return Detection{TrackID: &id, Score: score, Area: area}
}

// FrameInput is everything the engine looks at for one frame.
type FrameInput struct {
	Index int
	Frame image.Image
	// Detections of the previous processed frame. nil means no list was
	// supplied; an empty non-nil slice means the detector found nothing.
	Detections []Detection
	LockOn     bool
	Seek       bool
}

// Decision is the outcome of one Evaluate call.
type Decision struct {
	FrameIndex    int    `json:"frame_idx"`
	ShouldProcess bool   `json:"should_process"`
	Interval      int    `json:"interval"`
	Reason        Reason `json:"reason"`
}

// Label encodes the reason and the interval, e.g. "motion_spike (interval=1)".
func (d Decision) Label() string {
	return fmt.Sprintf("%s (interval=%d)", d.Reason, d.Interval)
}

const noFrameProcessed = -1

// Sampler is the adaptive sampling engine for one video session.
type Sampler struct {
	cfg       Config
	sessionID uuid.UUID
	now       func() time.Time

	motion        *MotionScorer
	motionHistory *ring[float64]

	prevDetectionCount int
	prevTrackIDs       map[int]struct{}
	curTrackIDs        map[int]struct{}
	stabilityCounter   int

	// lockOnBoostRemaining is armed on every lock-on frame but nothing
	// consumes it; lock-on only has an effect while the flag is set.
	lockOnBoostRemaining int
	idSwitchCooldown     int
	lastSeek             time.Time

	lastProcessedFrame int
	metrics            Metrics
	telemetry          *TelemetryLog
}

// Option customizes a Sampler at construction.
type Option func(*Sampler)

// WithClock replaces the wall clock used for the seek boost window and
// telemetry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a sampler for cfg. The config is used as given; call
// cfg.Validate first to reject inconsistent policies.
func New(cfg Config, opts ...Option) *Sampler {
	s := &Sampler{
		cfg:                cfg,
		sessionID:          uuid.New(),
		now:                time.Now,
		motion:             NewMotionScorer(cfg.MotionDownscaleWidth),
		motionHistory:      newRing[float64](cfg.MotionHistorySize),
		prevTrackIDs:       make(map[int]struct{}),
		curTrackIDs:        make(map[int]struct{}),
		lastProcessedFrame: noFrameProcessed,
		metrics:            newMetrics(cfg),
		telemetry:          NewTelemetryLog(cfg.MaxTelemetryEvents),
	}
	for _, opt := range opts {
		opt(s)
	}
	logger.Info("Sampler", "Session %s: intervals min=%d default=%d max=%d, motion=%v id_tracking=%v crowd=%v",
		s.sessionID, cfg.MinInterval, cfg.DefaultInterval, cfg.MaxInterval,
		cfg.EnableMotion, cfg.EnableIDTracking, cfg.EnableCrowdMonitoring)
	return s
}

// NewForFPS sizes a config for the expected frame rate, applies overrides
// and returns the sampler together with any override diagnostics.
func NewForFPS(fps float64, overrides map[string]any, opts ...Option) (*Sampler, []string) {
	cfg, diags := ConfigForFPS(fps).WithOverrides(overrides)
	for _, d := range diags {
		logger.Warn("Sampler", "%s", d)
	}
	return New(cfg, opts...), diags
}

// SessionID identifies the current session; it changes on Reset.
func (s *Sampler) SessionID() uuid.UUID { return s.sessionID }

// Config returns the active policy.
func (s *Sampler) Config() Config { return s.cfg }

// ShouldProcessFrame is the positional form of Evaluate returning the
// decision flag and its label.
func (s *Sampler) ShouldProcessFrame(index int, frame image.Image, detections []Detection, lockOn, seek bool) (bool, string) {
	d := s.Evaluate(FrameInput{Index: index, Frame: frame, Detections: detections, LockOn: lockOn, Seek: seek})
	return d.ShouldProcess, d.Label()
}

// Evaluate decides whether the frame should be processed. It never fails.
func (s *Sampler) Evaluate(in FrameInput) Decision {
	start := time.Now()

	if in.Seek {
		s.lastSeek = s.now()
		d := Decision{FrameIndex: in.Index, ShouldProcess: true, Interval: s.cfg.MinInterval, Reason: ReasonUserSeek}
		s.commit(d, in.Detections, start)
		return d
	}

	var interval int
	var reason Reason
	switch {
	case s.inSeekWindow():
		interval, reason = 1, ReasonUserSeek
	case in.LockOn:
		s.lockOnBoostRemaining = s.cfg.LockOnBoostFrames
		s.metrics.LockEvents++
		interval, reason = 1, ReasonLockOnActive
	case s.idSwitchCooldown > 0:
		s.idSwitchCooldown--
		interval, reason = 1, ReasonIDSwitch
	default:
		interval, reason = s.adaptiveInterval(in.Frame, in.Detections)
	}

	d := Decision{
		FrameIndex:    in.Index,
		ShouldProcess: s.elapsed(in.Index, interval),
		Interval:      interval,
		Reason:        reason,
	}
	s.commit(d, in.Detections, start)
	return d
}

// elapsed reports whether enough frames passed since the last processed one.
// The first frame of a session always passes.
func (s *Sampler) elapsed(index, interval int) bool {
	if s.lastProcessedFrame == noFrameProcessed {
		return true
	}
	return index-s.lastProcessedFrame >= interval
}

func (s *Sampler) inSeekWindow() bool {
	if s.lastSeek.IsZero() {
		return false
	}
	return s.now().Sub(s.lastSeek) < s.cfg.SeekBoostWindow
}

// adaptiveInterval runs the normal pipeline. Later stages may overwrite the
// interval and reason chosen by earlier ones.
func (s *Sampler) adaptiveInterval(frame image.Image, detections []Detection) (int, Reason) {
	cfg := &s.cfg
	interval, reason := cfg.DefaultInterval, ReasonDefault

	if cfg.EnableMotion {
		s.motionHistory.Push(s.motion.Score(frame))
		avg := s.averageMotion()
		s.metrics.AvgMotionScore = avg

		switch {
		case avg > cfg.MotionThresholdHigh:
			interval, reason = cfg.MinInterval, ReasonMotionSpike
			s.stabilityCounter = 0
		case avg < cfg.MotionThresholdLow:
			s.stabilityCounter++
		default:
			s.stabilityCounter = 0
		}
	}

	if cfg.EnableCrowdMonitoring && detections != nil {
		count := len(detections)
		if s.prevDetectionCount > 0 {
			change := float64(abs(count-s.prevDetectionCount)) / float64(s.prevDetectionCount)
			if change > cfg.DetectionChangeThreshold {
				// The reason is relabeled even when motion already chose a
				// smaller interval.
				interval = min(interval, cfg.MinInterval+1)
				reason = ReasonCrowdChange
				s.stabilityCounter = 0
			}
		}
		s.prevDetectionCount = count
	}

	if cfg.EnableIDTracking && detections != nil {
		clear(s.curTrackIDs)
		for _, det := range detections {
			if det.TrackID != nil {
				s.curTrackIDs[*det.TrackID] = struct{}{}
			}
		}
		if len(s.prevTrackIDs) > 0 && !sameIDs(s.prevTrackIDs, s.curTrackIDs) {
			s.idSwitchCooldown = cfg.IDSwitchPenaltyFrames
			interval, reason = cfg.MinInterval, ReasonIDSwitch
			s.metrics.IDSwitches++
			s.stabilityCounter = 0
		}
		s.prevTrackIDs, s.curTrackIDs = s.curTrackIDs, s.prevTrackIDs
	}

	if reason == ReasonDefault && s.stabilityCounter >= cfg.StabilityWindowFrames {
		interval = min(cfg.MaxInterval, interval+1)
		reason = ReasonStableScene
	}

	return max(cfg.MinInterval, min(cfg.MaxInterval, interval)), reason
}

func (s *Sampler) averageMotion() float64 {
	n := s.motionHistory.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	s.motionHistory.Do(func(v float64) { sum += v })
	return sum / float64(n)
}

// commit updates the gate state, metrics and telemetry for a decision.
func (s *Sampler) commit(d Decision, detections []Detection, start time.Time) {
	if d.ShouldProcess {
		s.lastProcessedFrame = d.FrameIndex
	}
	s.metrics.observe(d, len(detections))
	s.metrics.ProcessingTime = time.Since(start)

	s.telemetry.Append(TelemetryEvent{
		Timestamp:       s.now(),
		FrameIndex:      d.FrameIndex,
		Reason:          d.Reason,
		Interval:        d.Interval,
		Processed:       d.ShouldProcess,
		MotionScore:     s.metrics.AvgMotionScore,
		DetectionCount:  s.metrics.DetectionCount,
		ProcessingRatio: s.metrics.ProcessingRatio(),
	})

	logger.Debug("Sampler", "frame=%d process=%v %s", d.FrameIndex, d.ShouldProcess, d.Label())
}

// Metrics returns a snapshot of the session counters.
func (s *Sampler) Metrics() Metrics { return s.metrics }

// TelemetryEvents returns every retained event, oldest first.
func (s *Sampler) TelemetryEvents() []TelemetryEvent { return s.telemetry.Events() }

// LastTelemetryEvent returns the event recorded by the latest decision.
func (s *Sampler) LastTelemetryEvent() (TelemetryEvent, bool) { return s.telemetry.Last() }

// TelemetryEventsSince returns the retained events stamped at or after t.
func (s *Sampler) TelemetryEventsSince(t time.Time) []TelemetryEvent { return s.telemetry.Since(t) }

// Close releases the motion reference frame. The sampler stays usable and
// the next frame is scored as a first frame.
func (s *Sampler) Close() { s.motion.Close() }

// Reset returns the sampler to its start-of-session state for the next
// video. The config is kept and buffers are reused.
func (s *Sampler) Reset() {
	logger.Info("Sampler", "Resetting session %s", s.sessionID)

	s.sessionID = uuid.New()
	s.motion.Reset()
	s.motionHistory.Reset()
	s.prevDetectionCount = 0
	clear(s.prevTrackIDs)
	clear(s.curTrackIDs)
	s.stabilityCounter = 0
	s.lockOnBoostRemaining = 0
	s.idSwitchCooldown = 0
	s.lastSeek = time.Time{}
	s.lastProcessedFrame = noFrameProcessed
	s.metrics = newMetrics(s.cfg)
	s.telemetry.Reset()
}

// UpdateConfig applies field overrides by name. Unknown names and bad values
// are logged and returned; they never abort the update.
func (s *Sampler) UpdateConfig(overrides map[string]any) []string {
	cfg, diags := s.cfg.WithOverrides(overrides)
	for _, d := range diags {
		logger.Warn("Sampler", "%s", d)
	}
	for _, name := range OverrideNames() {
		if v, ok := overrides[name]; ok {
			logger.Info("Sampler", "Updated config: %s = %v", name, v)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Sampler", "Config after update is inconsistent: %v", err)
	}

	s.cfg = cfg
	s.motionHistory.Resize(cfg.MotionHistorySize)
	s.telemetry.Resize(cfg.MaxTelemetryEvents)
	s.motion.SetDownscaleWidth(cfg.MotionDownscaleWidth)
	return diags
}

// State is a read-only view of the engine's carried state.
type State struct {
	LastProcessedFrame   int
	MotionHistory        []float64
	HasPreviousFrame     bool
	PrevDetectionCount   int
	PrevTrackIDs         []int
	StabilityCounter     int
	IDSwitchCooldown     int
	LockOnBoostRemaining int
	LastSeek             time.Time
	Metrics              Metrics
	TelemetryEvents      int
}

// State returns a copy of the carried state.
func (s *Sampler) State() State {
	ids := make([]int, 0, len(s.prevTrackIDs))
	for id := range s.prevTrackIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return State{
		LastProcessedFrame:   s.lastProcessedFrame,
		MotionHistory:        s.motionHistory.Slice(),
		HasPreviousFrame:     s.motion.HasPrevious(),
		PrevDetectionCount:   s.prevDetectionCount,
		PrevTrackIDs:         ids,
		StabilityCounter:     s.stabilityCounter,
		IDSwitchCooldown:     s.idSwitchCooldown,
		LockOnBoostRemaining: s.lockOnBoostRemaining,
		LastSeek:             s.lastSeek,
		Metrics:              s.metrics,
		TelemetryEvents:      s.telemetry.Len(),
	}
}

func sameIDs(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
