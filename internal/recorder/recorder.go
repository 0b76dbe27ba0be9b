package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"
)

// DefaultBufferSize is the number of events queued before Send starts dropping
const DefaultBufferSize = 1024

// Record is one line of a telemetry file
type Record struct {
	Session string `json:"session"`
	sampling.TelemetryEvent
}

// Recorder writes sampler telemetry events to a JSONL file
type Recorder struct {
	mu        sync.RWMutex
	file      *os.File
	out       *bufio.Writer
	enc       *json.Encoder
	filename  string
	basePath  string
	session   string
	recording bool
	written   uint64
	dropped   uint64
	startTime time.Time
	eventChan chan sampling.TelemetryEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup

	metrics *metrics.Metrics
}

// NewRecorder creates a new recorder. m may be nil.
func NewRecorder(basePath string, bufferSize int, m *metrics.Metrics) *Recorder {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		basePath:  basePath,
		eventChan: make(chan sampling.TelemetryEvent, bufferSize),
		metrics:   m,
	}
}

// Start starts recording the given session to a new file
func (r *Recorder) Start(session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return fmt.Errorf("already recording")
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("telemetry_%s_%s.jsonl", timestamp, session)
	file, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.out = bufio.NewWriter(file)
	r.enc = json.NewEncoder(r.out)
	r.filename = filename
	r.session = session
	r.recording = true
	r.written = 0
	r.dropped = 0
	r.startTime = time.Now()
	r.stopChan = make(chan struct{})

	// Events that raced a previous Stop belong to the old session
	for len(r.eventChan) > 0 {
		<-r.eventChan
	}

	r.wg.Add(1)
	go r.writeEvents(r.stopChan)

	logger.Info("Recorder", "Recording telemetry to %s", filename)
	return nil
}

// Stop stops recording, flushing every queued event
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return fmt.Errorf("not recording")
	}
	r.recording = false
	close(r.stopChan)
	r.mu.Unlock()

	// Wait for write goroutine to finish
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		defer func() { r.file = nil }()
		if err := r.out.Flush(); err != nil {
			r.file.Close()
			return fmt.Errorf("failed to flush file: %w", err)
		}
		if err := r.file.Sync(); err != nil {
			r.file.Close()
			return fmt.Errorf("failed to sync file: %w", err)
		}
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("failed to close file: %w", err)
		}
	}

	logger.Info("Recorder", "Stopped %s: %d events written, %d dropped", r.filename, r.written, r.dropped)
	return nil
}

// Send queues an event (non-blocking). It reports false when the event was
// dropped because the recorder is stopped or its buffer is full.
func (r *Recorder) Send(ev sampling.TelemetryEvent) bool {
	r.mu.RLock()
	recording := r.recording
	r.mu.RUnlock()

	if !recording {
		return false
	}

	select {
	case r.eventChan <- ev:
		return true
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecorderEventsDropped.Add(1)
		}
		return false
	}
}

// writeEvents drains the queue until stop is closed
func (r *Recorder) writeEvents(stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.eventChan:
			r.writeEvent(ev)
		case <-stop:
			for {
				select {
				case ev := <-r.eventChan:
					r.writeEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeEvent(ev sampling.TelemetryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return
	}

	if err := r.enc.Encode(Record{Session: r.session, TelemetryEvent: ev}); err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}
	r.written++
	if r.metrics != nil {
		r.metrics.RecorderEventsWritten.Add(1)
	}
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var durationMs int64
	if r.recording {
		durationMs = time.Since(r.startTime).Milliseconds()
	}

	return RecordingStatus{
		Recording:     r.recording,
		Filename:      r.filename,
		Session:       r.session,
		EventsWritten: r.written,
		EventsDropped: r.dropped,
		DurationMs:    durationMs,
		StartTime:     r.startTime,
	}
}

// Close stops the recorder if it is running
func (r *Recorder) Close() error {
	if r.IsRecording() {
		return r.Stop()
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording     bool      `json:"recording"`
	Filename      string    `json:"filename"`
	Session       string    `json:"session"`
	EventsWritten uint64    `json:"events_written"`
	EventsDropped uint64    `json:"events_dropped"`
	DurationMs    int64     `json:"duration_ms"`
	StartTime     time.Time `json:"start_time"`
}
