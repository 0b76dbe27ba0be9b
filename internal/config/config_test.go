package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sampler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", map[string]any{"input.frames_dir": "/frames"})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Input.Adaptive)
	assert.Equal(t, 1, cfg.Input.FixedStride)
	assert.Equal(t, 15*time.Second, cfg.Server.SSEKeepalive)
	assert.Equal(t, "-", cfg.Output)
	assert.Empty(t, cfg.Sampling)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
server:
  monitor_addr: ":8090"
  sse_keepalive: 5s
input:
  frames_dir: /data/frames
  fps: 25
  adaptive: false
  fixed_stride: 4
  lock_on_frames: [10, 11, 12]
sampling:
  min_interval: 2
  enable_motion: false
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8090", cfg.Server.MonitorAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.SSEKeepalive)
	assert.Equal(t, 25.0, cfg.Input.FPS)
	assert.False(t, cfg.Input.Adaptive)
	assert.Equal(t, 4, cfg.Input.FixedStride)
	assert.Equal(t, []int{10, 11, 12}, cfg.Input.LockOnFrames)
	assert.EqualValues(t, 2, cfg.Sampling["min_interval"])
	assert.Equal(t, false, cfg.Sampling["enable_motion"])
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
input:
  frames_dir: /from/file
  fps: 25
  max_frames: 10
`)
	t.Setenv("SAMPLER_INPUT_FPS", "50")
	t.Setenv("SAMPLER_INPUT_MAX_FRAMES", "20")

	cfg, err := Load(path, map[string]any{"input.max_frames": 30})
	require.NoError(t, err)

	assert.Equal(t, "/from/file", cfg.Input.FramesDir)
	assert.Equal(t, 50.0, cfg.Input.FPS, "env beats file")
	assert.Equal(t, 30, cfg.Input.MaxFrames, "overrides beat env")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		field     string
	}{
		{"missing frames dir", map[string]any{}, "FramesDir"},
		{"bad level", map[string]any{"input.frames_dir": "x", "log.level": "loud"}, "Level"},
		{"zero stride", map[string]any{"input.frames_dir": "x", "input.fixed_stride": 0}, "FixedStride"},
		{"recorder without dir", map[string]any{
			"input.frames_dir": "x", "recorder.enabled": true, "recorder.output_dir": "",
		}, "OutputDir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, err := Load("", tt.overrides)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
