package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/pkg/types"
)

// Options control one run.
type Options struct {
	// Adaptive enables the sampler; otherwise every FixedStride-th frame is processed.
	Adaptive    bool
	FixedStride int
	// MaxFrames stops the run after that many processed frames. 0 means no limit.
	MaxFrames int
	// FPS overrides the source frame rate when > 0.
	FPS float64
	// Overrides are applied to the fps-sized sampling config.
	Overrides map[string]any

	// LockOn and Seek supply the external override signals per frame index.
	LockOn func(index int) bool
	Seek   func(index int) bool

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Event is published to observers for every frame that got a decision.
type Event struct {
	Session   string
	Decision  sampling.Decision
	Payload   sampling.Payload
	Metrics   sampling.Metrics
	Telemetry sampling.TelemetryEvent
	// Tracks kept for a processed frame; nil for skipped or failed frames.
	Tracks  []types.Track
	Latency time.Duration
}

// Observer receives pipeline events on the run goroutine. Implementations
// must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Runner drives one video through the sampler and the detector.
type Runner struct {
	src       FrameSource
	det       Detector
	opts      Options
	meta      types.StreamMeta
	sampler   *sampling.Sampler
	observers []Observer
}

// NewRunner sizes the sampler from the source frame rate. The returned
// diagnostics list override keys that were ignored.
func NewRunner(src FrameSource, det Detector, opts Options, samplerOpts ...sampling.Option) (*Runner, []string) {
	meta := src.Meta()
	if opts.FPS > 0 {
		meta.FPS = opts.FPS
	}
	if meta.FPS <= 0 {
		meta.FPS = DefaultFPS
	}
	if opts.FixedStride < 1 {
		opts.FixedStride = 1
	}

	r := &Runner{src: src, det: det, opts: opts, meta: meta}

	var diags []string
	if opts.Adaptive {
		r.sampler, diags = sampling.NewForFPS(meta.FPS, opts.Overrides, samplerOpts...)
		if err := r.sampler.Config().Validate(); err != nil {
			logger.Warn("Pipeline", "Sampling config: %v", err)
		}
		logger.Info("Pipeline", "Adaptive sampling enabled for %s at %.1f FPS", meta.SourceLocation, meta.FPS)
	} else {
		logger.Info("Pipeline", "Fixed sampling enabled with stride %d", opts.FixedStride)
	}
	return r, diags
}

// AddObserver registers o for every later event.
func (r *Runner) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// Sampler returns the adaptive sampler, nil in fixed-stride mode.
func (r *Runner) Sampler() *sampling.Sampler { return r.sampler }

// Close releases the sampler's frame buffers.
func (r *Runner) Close() {
	if r.sampler != nil {
		r.sampler.Close()
	}
}

// Session identifies the run. Fixed-stride runs have no sampler session.
func (r *Runner) Session() string {
	if r.sampler == nil {
		return "fixed"
	}
	return r.sampler.SessionID().String()
}

// Result is the output of a run: metadata plus every kept track.
type Result struct {
	Meta   Summary       `json:"meta"`
	Tracks []types.Track `json:"tracks"`
}

// Run reads the source until it is exhausted, MaxFrames frames were
// processed or ctx is canceled. On cancellation the partial result is
// returned together with the context error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var (
		st     runStats
		tracks = []types.Track{}
		// detections of the last processed frame, nil until one exists
		prev []sampling.Detection
		err  error
	)

	for {
		if err = ctx.Err(); err != nil {
			break
		}

		var frame types.Frame
		frame, err = r.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			err = nil
			break
		}
		if errors.Is(err, ErrBadFrame) {
			st.readErrors++
			if m := r.opts.Metrics; m != nil {
				m.ReadErrors.Add(1)
			}
			logger.Warn("Pipeline", "Skipping frame %d: %v", frame.Index, err)
			continue
		}
		if err != nil {
			err = fmt.Errorf("read frame: %w", err)
			break
		}

		st.read++
		if m := r.opts.Metrics; m != nil {
			m.FramesRead.Add(1)
		}

		ev := r.decide(frame, prev)
		if !ev.Decision.ShouldProcess {
			st.skipped++
			r.publish(ev)
			continue
		}

		found, derr := r.det.Detect(ctx, frame)
		if derr != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
			st.detectErrors++
			if m := r.opts.Metrics; m != nil {
				m.DetectErrors.Add(1)
			}
			logger.Error("Pipeline", "Detection failed on frame %d: %v", frame.Index, derr)
			r.publish(ev)
			continue
		}

		kept, dropped := normalizeTracks(found, frame)
		if m := r.opts.Metrics; m != nil {
			m.TracksSeen.Add(uint64(len(kept)))
			m.TracksDropped.Add(uint64(dropped))
		}
		tracks = append(tracks, kept...)
		prev = toDetections(kept)
		st.processed++

		ev.Tracks = kept
		r.publish(ev)

		if r.opts.MaxFrames > 0 && st.processed >= r.opts.MaxFrames {
			logger.Info("Pipeline", "Reached max frames limit: %d", r.opts.MaxFrames)
			break
		}
	}

	sum := r.summarize(st)
	logger.Info("Pipeline", "Processing complete: %d frames processed from %d total frames (%.1f%%)",
		sum.FramesProcessed, sum.FramesRead, sum.ProcessingEfficiency)
	return Result{Meta: sum, Tracks: tracks}, err
}

// decide asks the sampler, or applies the fixed stride.
func (r *Runner) decide(frame types.Frame, prev []sampling.Detection) Event {
	start := time.Now()
	ev := Event{Session: r.Session()}

	if r.sampler != nil {
		lockOn := r.opts.LockOn != nil && r.opts.LockOn(frame.Index)
		seek := r.opts.Seek != nil && r.opts.Seek(frame.Index)
		ev.Decision, ev.Payload = sampling.Integrate(r.sampler, frame.Index, frame.Image, prev, lockOn, seek)
		ev.Metrics = r.sampler.Metrics()
		ev.Telemetry, _ = r.sampler.LastTelemetryEvent()
	} else {
		stride := r.opts.FixedStride
		ev.Decision = sampling.Decision{
			FrameIndex:    frame.Index,
			ShouldProcess: frame.Index%stride == 0,
			Interval:      stride,
			Reason:        sampling.ReasonDefault,
		}
		ev.Payload = sampling.Payload{
			FrameIndex:      frame.Index,
			ShouldProcess:   ev.Decision.ShouldProcess,
			Reason:          fmt.Sprintf("fixed_stride_%d", stride),
			CurrentInterval: stride,
		}
		ev.Telemetry = sampling.TelemetryEvent{
			Timestamp:  time.Now(),
			FrameIndex: frame.Index,
			Reason:     sampling.ReasonDefault,
			Interval:   stride,
			Processed:  ev.Decision.ShouldProcess,
		}
	}
	ev.Latency = time.Since(start)

	if m := r.opts.Metrics; m != nil {
		m.Observe(ev.Decision, ev.Metrics, ev.Latency)
	}
	return ev
}

func (r *Runner) publish(ev Event) {
	for _, o := range r.observers {
		o.Observe(ev)
	}
}

// normalizeTracks clips boxes to the frame, drops the ones left without
// area and attaches the normalized box. Frames without an image are
// returned unchanged.
func normalizeTracks(found []types.Track, frame types.Frame) ([]types.Track, int) {
	w, h := float64(frame.Width()), float64(frame.Height())
	if w <= 0 || h <= 0 {
		return found, 0
	}

	kept := make([]types.Track, 0, len(found))
	dropped := 0
	for _, t := range found {
		x1 := clamp(t.X, 0, w)
		y1 := clamp(t.Y, 0, h)
		x2 := clamp(t.X+t.W, 0, w)
		y2 := clamp(t.Y+t.H, 0, h)
		bw, bh := x2-x1, y2-y1
		if bw <= 0 || bh <= 0 {
			dropped++
			continue
		}

		t.Frame = frame.Index
		t.X, t.Y, t.W, t.H = x1, y1, bw, bh
		t.Box = &types.NormBox{X: x1 / w, Y: y1 / h, W: bw / w, H: bh / h}
		kept = append(kept, t)
	}
	return kept, dropped
}

func toDetections(tracks []types.Track) []sampling.Detection {
	out := make([]sampling.Detection, 0, len(tracks))
	for _, t := range tracks {
		d := sampling.Detection{TrackID: t.ID, Score: t.Score}
		if t.Box != nil {
			d.Area = t.Box.Area()
		}
		out = append(out, d)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
