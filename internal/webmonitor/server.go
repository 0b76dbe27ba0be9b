package webmonitor

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/recorder"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/protobuf"
)

// Server serves the sampling monitor endpoints. It implements
// pipeline.Observer; attach it to a Runner to feed it.
type Server struct {
	cfg         Config
	monitor     *Monitor
	broadcaster *StatusBroadcaster
	recorder    *recorder.Recorder
}

// NewServer returns a configured monitor server.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = def.Keepalive
	}
	if cfg.TelemetryEvents <= 0 {
		cfg.TelemetryEvents = def.TelemetryEvents
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}

	return &Server{
		cfg:         cfg,
		monitor:     NewMonitor(cfg.TelemetryEvents),
		broadcaster: NewStatusBroadcaster(cfg.ClientBuffer),
	}
}

// SetRecorder enables the /api/recording endpoints.
func (s *Server) SetRecorder(r *recorder.Recorder) {
	s.recorder = r
}

// Observe updates the status and pushes it to stream subscribers.
func (s *Server) Observe(ev pipeline.Event) {
	status := s.monitor.Update(ev)
	s.broadcaster.Publish(status)
}

// Close disconnects stream clients.
func (s *Server) Close() {
	s.broadcaster.Close()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/sampling/status", s.handleStatus)
	mux.HandleFunc("GET /api/sampling/stream", s.handleStatusStream)
	mux.HandleFunc("GET /api/sampling/telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /api/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("POST /api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("POST /api/recording/stop", s.handleRecordingStop)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"uptime_s": math.Round(s.monitor.Uptime().Seconds()*1000) / 1000,
		"events":   s.monitor.Events(),
		"clients":  s.broadcaster.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.monitor.Snapshot()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no sampling decisions yet"}, http.StatusNotFound)
		return
	}

	if !wantsProtobuf(r) {
		writeJSON(w, status)
		return
	}

	_, pbData, err := serialize(status)
	if err != nil {
		logger.Error("WebMonitor", "Status serialization failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pbData)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	streamStatusEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r), s.cfg.Keepalive)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		secs, err := cast.ToFloat64E(raw)
		if err != nil || secs < 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
			writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("invalid since: %q", raw)}, http.StatusBadRequest)
			return
		}
		whole, frac := math.Modf(secs)
		since = time.Unix(int64(whole), int64(frac*1e9))
	}
	writeJSON(w, s.monitor.Telemetry(since))
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusNotFound)
		return
	}
	writeJSON(w, s.recorder.GetStatus())
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusNotFound)
		return
	}

	session := "unknown"
	if status, ok := s.monitor.Snapshot(); ok {
		session = status.Session
	}
	if err := s.recorder.Start(session); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       s.recorder.GetStatus().Filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusNotFound)
		return
	}

	if err := s.recorder.Stop(); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	stats := s.recorder.GetStatus()
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       stats.Filename,
		"stats":      stats,
		"stopped_at": float64(time.Now().Unix()),
	})
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentTypeProtobuf) ||
		strings.Contains(accept, "application/x-protobuf")
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("WebMonitor", "Response encoding failed: %v", err)
	}
}
