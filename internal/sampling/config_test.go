package sampling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"min above default", func(c *Config) { c.MinInterval = 3 }, "MinInterval"},
		{"default above max", func(c *Config) { c.DefaultInterval = 9 }, "DefaultInterval"},
		{"zero min", func(c *Config) { c.MinInterval = 0 }, "MinInterval"},
		{"inverted thresholds", func(c *Config) { c.MotionThresholdHigh = 0.01 }, "MotionThresholdHigh"},
		{"negative low threshold", func(c *Config) { c.MotionThresholdLow = -0.1 }, "MotionThresholdLow"},
		{"empty history", func(c *Config) { c.MotionHistorySize = 0 }, "MotionHistorySize"},
		{"change threshold above one", func(c *Config) { c.DetectionChangeThreshold = 1.5 }, "DetectionChangeThreshold"},
		{"negative seek window", func(c *Config) { c.SeekBoostWindow = -time.Second }, "SeekBoostWindow"},
		{"no telemetry", func(c *Config) { c.MaxTelemetryEvents = 0 }, "MaxTelemetryEvents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigForFPS(t *testing.T) {
	tests := []struct {
		fps              float64
		wantDefault, max int
	}{
		{120, 3, 12},
		{60, 3, 12},
		{59.94, 2, 8},
		{30, 2, 8},
		{25, 1, 4},
		{0, 2, 8},
		{-5, 2, 8},
	}
	for _, tt := range tests {
		cfg := ConfigForFPS(tt.fps)
		assert.Equal(t, tt.wantDefault, cfg.DefaultInterval, "fps=%v", tt.fps)
		assert.Equal(t, tt.max, cfg.MaxInterval, "fps=%v", tt.fps)
		assert.NoError(t, cfg.Validate(), "fps=%v", tt.fps)
	}
}

func TestWithOverrides(t *testing.T) {
	base := DefaultConfig()
	cfg, diags := base.WithOverrides(map[string]any{
		"max_interval":              "16",
		"motion_threshold_high":     0.4,
		"enable_motion":             "false",
		"seek_boost_window_seconds": 0.5,
	})
	assert.Empty(t, diags)
	assert.Equal(t, 16, cfg.MaxInterval)
	assert.Equal(t, 0.4, cfg.MotionThresholdHigh)
	assert.False(t, cfg.EnableMotion)
	assert.Equal(t, 500*time.Millisecond, cfg.SeekBoostWindow)

	// the receiver is untouched
	assert.Equal(t, DefaultConfig(), base)
}

func TestWithOverridesDiagnostics(t *testing.T) {
	cfg, diags := DefaultConfig().WithOverrides(map[string]any{
		"zzz":                 1,
		"aaa":                 1,
		"motion_history_size": []int{1},
	})
	require.Len(t, diags, 3)
	assert.Equal(t, "unknown config parameter: aaa", diags[0])
	assert.Contains(t, diags[1], "invalid value for motion_history_size")
	assert.Equal(t, "unknown config parameter: zzz", diags[2])
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestOverrideNamesSorted(t *testing.T) {
	names := OverrideNames()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "min_interval")
	assert.Contains(t, names, "seek_boost_window_seconds")
}
