package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/webmonitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/pkg/types"
)

var (
	// Command-line flags. Only flags set explicitly override the config.
	configPath  = flag.String("config", "", "Config file (default: sampler.yaml in . or /etc/frame-sampler)")
	framesDir   = flag.String("frames", "", "Directory of frame images")
	detections  = flag.String("detections", "", "Detection log (JSONL, one track per line)")
	fps         = flag.Float64("fps", 0, "Source frame rate (0: 30)")
	adaptive    = flag.Bool("adaptive", true, "Enable adaptive sampling")
	stride      = flag.Int("stride", 1, "Fixed stride when adaptive sampling is off")
	maxFrames   = flag.Int("max-frames", 0, "Stop after N processed frames (0: no limit)")
	output      = flag.String("output", "-", "Result JSON path (- for stdout)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logFormat   = flag.String("log-format", "console", "Log format (console, json)")
	metricsAddr = flag.String("metrics", "", "Metrics server address (empty: disabled)")
	monitorAddr = flag.String("monitor", "", "Web monitor address (empty: disabled)")
	record      = flag.Bool("record", false, "Record telemetry to JSONL")
	recordPath  = flag.String("record-path", "./telemetry", "Telemetry output path")
	linger      = flag.Bool("linger", false, "Keep servers running after the run until interrupted")
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"frames":      "input.frames_dir",
	"detections":  "input.detections",
	"fps":         "input.fps",
	"adaptive":    "input.adaptive",
	"stride":      "input.fixed_stride",
	"max-frames":  "input.max_frames",
	"output":      "output",
	"log-level":   "log.level",
	"log-format":  "log.format",
	"metrics":     "server.metrics_addr",
	"monitor":     "server.monitor_addr",
	"record":      "recorder.enabled",
	"record-path": "recorder.output_dir",
	"linger":      "server.linger",
}

// App wires the sampler pipeline to its reporting surfaces.
type App struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	runner   *pipeline.Runner
	monitor  *webmonitor.Server
	recorder *recorder.Recorder
	servers  []*http.Server
	wg       sync.WaitGroup
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath, flagOverrides())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(logger.Config{Level: level, Format: cfg.Log.Format, UseColor: cfg.Log.Color, Output: os.Stderr})

	logger.Info("Main", "Frame sampler starting...")
	if cfg.File != "" {
		logger.Info("Main", "Config file: %s", cfg.File)
	}
	logger.Info("Main", "Log level: %s", level)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create sampler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := app.Run(ctx); err != nil {
		logger.Error("Main", "Run failed: %v", err)
		code = 1
	}

	if err := app.Shutdown(); err != nil {
		logger.Warn("Main", "Error during shutdown: %v", err)
	}
	logger.Info("Main", "Sampler stopped")
	os.Exit(code)
}

// flagOverrides returns config keys for every flag given on the command line.
func flagOverrides() map[string]any {
	overrides := make(map[string]any)
	flag.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if getter, ok := f.Value.(flag.Getter); ok {
			overrides[key] = getter.Get()
		}
	})
	return overrides
}

// NewApp builds the frame source, detector, runner and optional servers.
func NewApp(cfg *config.Config) (*App, error) {
	src, err := pipeline.NewDirSource(cfg.Input.FramesDir, cfg.Input.FPS)
	if err != nil {
		return nil, fmt.Errorf("failed to open frames: %w", err)
	}

	det, err := newDetector(cfg.Input.Detections)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	runner, diags := pipeline.NewRunner(src, det, pipeline.Options{
		Adaptive:    cfg.Input.Adaptive,
		FixedStride: cfg.Input.FixedStride,
		MaxFrames:   cfg.Input.MaxFrames,
		FPS:         cfg.Input.FPS,
		Overrides:   cfg.Sampling,
		LockOn:      frameSet(cfg.Input.LockOnFrames),
		Seek:        frameSet(cfg.Input.SeekFrames),
		Metrics:     m,
	})
	for _, d := range diags {
		logger.Warn("Main", "Sampling override ignored: %s", d)
	}

	app := &App{cfg: cfg, metrics: m, runner: runner}

	if cfg.Recorder.Enabled || cfg.Server.MonitorAddr != "" {
		app.recorder = recorder.NewRecorder(cfg.Recorder.OutputDir, cfg.Recorder.BufferSize, m)
		runner.AddObserver(pipeline.ObserverFunc(func(ev pipeline.Event) {
			app.recorder.Send(ev.Telemetry)
		}))
	}

	if cfg.Server.MonitorAddr != "" {
		mcfg := webmonitor.DefaultConfig()
		mcfg.Addr = cfg.Server.MonitorAddr
		if cfg.Server.SSEKeepalive > 0 {
			mcfg.Keepalive = cfg.Server.SSEKeepalive
		}
		app.monitor = webmonitor.NewServer(mcfg)
		app.monitor.SetRecorder(app.recorder)
		runner.AddObserver(app.monitor)
		app.servers = append(app.servers, &http.Server{
			Addr:              mcfg.Addr,
			Handler:           app.monitor.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	if cfg.Server.MetricsAddr != "" {
		app.servers = append(app.servers, m.NewServer(cfg.Server.MetricsAddr))
	}

	return app, nil
}

func newDetector(path string) (pipeline.Detector, error) {
	if path == "" {
		logger.Warn("Main", "No detection log given, every frame reports zero tracks")
		return pipeline.DetectorFunc(func(context.Context, types.Frame) ([]types.Track, error) {
			return nil, nil
		}), nil
	}

	det, err := pipeline.LoadReplayDetector(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load detections: %w", err)
	}
	logger.Info("Main", "Loaded %d recorded tracks from %s", det.Len(), path)
	return det, nil
}

// frameSet returns a predicate for the given frame indices, nil when empty.
func frameSet(frames []int) func(int) bool {
	if len(frames) == 0 {
		return nil
	}
	set := slices.Clone(frames)
	slices.Sort(set)
	return func(i int) bool {
		_, found := slices.BinarySearch(set, i)
		return found
	}
}

// Run starts the servers, processes the input and writes the result.
func (a *App) Run(ctx context.Context) error {
	for _, srv := range a.servers {
		a.wg.Add(1)
		go func(srv *http.Server) {
			defer a.wg.Done()
			logger.Info("Main", "Starting HTTP server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "HTTP server error: %v", err)
			}
		}(srv)
	}

	if a.cfg.Recorder.Enabled {
		if err := a.recorder.Start(a.runner.Session()); err != nil {
			return fmt.Errorf("failed to start recorder: %w", err)
		}
	}

	start := time.Now()
	result, runErr := a.runner.Run(ctx)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}
	if interrupted {
		logger.Warn("Main", "Interrupted, writing partial result")
	}

	logger.Info("Main", "Processed %d/%d frames (%.1f%%) in %s",
		result.Meta.FramesProcessed, result.Meta.FramesRead, result.Meta.ProcessingEfficiency,
		time.Since(start).Round(time.Millisecond))

	if err := writeResult(a.cfg.Output, result); err != nil {
		return err
	}

	if a.cfg.Server.Linger && len(a.servers) > 0 && !interrupted {
		logger.Info("Main", "Run finished, serving until interrupted")
		<-ctx.Done()
	}
	return nil
}

func writeResult(path string, result pipeline.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	logger.Info("Main", "Result written to %s", path)
	return nil
}

// Shutdown stops the recorder and the HTTP servers.
func (a *App) Shutdown() error {
	var errs []error

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.monitor != nil {
		a.monitor.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.wg.Wait()
	a.runner.Close()

	return errors.Join(errs...)
}
