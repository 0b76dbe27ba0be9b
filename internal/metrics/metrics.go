package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64

	// Detector output
	TracksSeen    atomic.Uint64
	TracksDropped atomic.Uint64 // zero-area after clipping
	DetectErrors  atomic.Uint64
	ReadErrors    atomic.Uint64

	// Sampler state, mirrored from the latest decision
	CurrentInterval atomic.Int64
	IDSwitches      atomic.Uint64
	LockEvents      atomic.Uint64
	motionScore     atomic.Uint64 // float64 bits
	processingRatio atomic.Uint64 // float64 bits

	// Telemetry recorder
	RecorderEventsWritten atomic.Uint64
	RecorderEventsDropped atomic.Uint64

	decisions       *prometheus.CounterVec
	decisionLatency prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sampler_decisions_total",
				Help: "Sampling decisions by reason",
			},
			[]string{"reason"},
		),
		decisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sampler_decision_seconds",
			Help:    "Time spent deciding whether to process a frame",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}

	for _, r := range sampling.AllReasons() {
		m.decisions.WithLabelValues(r.String())
	}

	m.registry.MustRegister(m.decisions, m.decisionLatency)
	m.registerGauges()

	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// registerGauges exposes the atomics
func (m *Metrics) registerGauges() {
	u := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	// Frame metrics
	m.gauge("sampler_frames_read_total", "Total frames read from the source", u(&m.FramesRead))
	m.gauge("sampler_frames_processed_total", "Total frames sent to the detector", u(&m.FramesProcessed))
	m.gauge("sampler_frames_skipped_total", "Total frames skipped by the sampler", u(&m.FramesSkipped))

	// Detector metrics
	m.gauge("sampler_tracks_seen_total", "Total tracks kept from processed frames", u(&m.TracksSeen))
	m.gauge("sampler_tracks_dropped_total", "Total tracks dropped for zero area after clipping", u(&m.TracksDropped))
	m.gauge("sampler_detect_errors_total", "Total detector failures", u(&m.DetectErrors))
	m.gauge("sampler_read_errors_total", "Total frame decode failures", u(&m.ReadErrors))

	// Sampler state
	m.gauge("sampler_current_interval_frames", "Sampling interval chosen for the latest frame",
		func() float64 { return float64(m.CurrentInterval.Load()) })
	m.gauge("sampler_id_switches_total", "Identity switches seen by the sampler", u(&m.IDSwitches))
	m.gauge("sampler_lock_events_total", "Frames evaluated with lock-on active", u(&m.LockEvents))
	m.gauge("sampler_motion_score", "Moving average of the motion score",
		func() float64 { return m.MotionScore() })
	m.gauge("sampler_processing_ratio_percent", "Percentage of frames processed",
		func() float64 { return m.ProcessingRatio() })

	// Recorder
	m.gauge("sampler_recorder_events_written_total", "Telemetry events written to disk", u(&m.RecorderEventsWritten))
	m.gauge("sampler_recorder_events_dropped_total", "Telemetry events dropped because the recorder was full", u(&m.RecorderEventsDropped))
}

// Observe folds one decision and the sampler's metrics after it.
func (m *Metrics) Observe(d sampling.Decision, sm sampling.Metrics, latency time.Duration) {
	if d.ShouldProcess {
		m.FramesProcessed.Add(1)
	} else {
		m.FramesSkipped.Add(1)
	}
	m.decisions.WithLabelValues(d.Reason.String()).Inc()
	m.decisionLatency.Observe(latency.Seconds())

	m.CurrentInterval.Store(int64(d.Interval))
	m.IDSwitches.Store(uint64(sm.IDSwitches))
	m.LockEvents.Store(uint64(sm.LockEvents))
	m.motionScore.Store(math.Float64bits(sm.AvgMotionScore))

	processed := m.FramesProcessed.Load()
	if total := processed + m.FramesSkipped.Load(); total > 0 {
		m.processingRatio.Store(math.Float64bits(float64(processed) / float64(total) * 100))
	}
}

// MotionScore returns the last mirrored motion average
func (m *Metrics) MotionScore() float64 {
	return math.Float64frombits(m.motionScore.Load())
}

// ProcessingRatio returns the processed percentage over all observed frames
func (m *Metrics) ProcessingRatio() float64 {
	return math.Float64frombits(m.processingRatio.Load())
}

// Registry exposes the collectors for tests and embedding
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics on addr
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	return m.NewServer(addr).ListenAndServe()
}
