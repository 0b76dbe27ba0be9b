package sampling

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// ErrInvalidConfig wraps every validation failure reported by Config.Validate.
var ErrInvalidConfig = errors.New("invalid sampling config")

// Config is the sampling policy for one video session.
//
// Intervals are frame counts. The engine only reads the config between
// decisions, so callers must not mutate it while Evaluate runs.
type Config struct {
	MinInterval     int `json:"min_interval" validate:"gte=1,ltefield=DefaultInterval"`
	MaxInterval     int `json:"max_interval" validate:"gte=1"`
	DefaultInterval int `json:"default_interval" validate:"gte=1,ltefield=MaxInterval"`

	MotionThresholdHigh float64 `json:"motion_threshold_high" validate:"gtfield=MotionThresholdLow"`
	MotionThresholdLow  float64 `json:"motion_threshold_low" validate:"gte=0"`
	MotionHistorySize   int     `json:"motion_history_size" validate:"gte=1"`
	// MotionDownscaleWidth shrinks frames to this width before scoring; 0 keeps full resolution.
	MotionDownscaleWidth int `json:"motion_downscale_width" validate:"gte=0"`

	DetectionChangeThreshold float64 `json:"detection_change_threshold" validate:"gt=0,lte=1"`
	IDSwitchPenaltyFrames    int     `json:"id_switch_penalty_frames" validate:"gte=0"`
	LockOnBoostFrames        int     `json:"lock_on_boost_frames" validate:"gte=0"`

	SeekBoostWindow       time.Duration `json:"seek_boost_window" validate:"gte=0s"`
	StabilityWindowFrames int           `json:"stability_window_frames" validate:"gte=1"`

	MaxTelemetryEvents int `json:"max_telemetry_events" validate:"gte=1"`

	EnableMotion          bool `json:"enable_motion"`
	EnableIDTracking      bool `json:"enable_id_tracking"`
	EnableCrowdMonitoring bool `json:"enable_crowd_monitoring"`
}

// DefaultConfig returns the policy used when nothing else is known about the video.
func DefaultConfig() Config {
	return Config{
		MinInterval:              1,
		MaxInterval:              8,
		DefaultInterval:          2,
		MotionThresholdHigh:      0.15,
		MotionThresholdLow:       0.05,
		MotionHistorySize:        10,
		DetectionChangeThreshold: 0.3,
		IDSwitchPenaltyFrames:    3,
		LockOnBoostFrames:        15,
		SeekBoostWindow:          2 * time.Second,
		StabilityWindowFrames:    30,
		MaxTelemetryEvents:       1000,
		EnableMotion:             true,
		EnableIDTracking:         true,
		EnableCrowdMonitoring:    true,
	}
}

// ConfigForFPS sizes the default and max intervals from the expected frame
// rate. A non-positive rate is treated as 30 fps.
func ConfigForFPS(fps float64) Config {
	if fps <= 0 {
		fps = 30
	}
	cfg := DefaultConfig()
	switch {
	case fps >= 60:
		cfg.DefaultInterval = 3
		cfg.MaxInterval = 12
	case fps >= 30:
		cfg.DefaultInterval = 2
		cfg.MaxInterval = 8
	default:
		cfg.DefaultInterval = 1
		cfg.MaxInterval = 4
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the orderings between intervals and thresholds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %s=%s (value %v)", ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

type overrideSetter func(c *Config, v any) error

func intSetter(field func(*Config) *int) overrideSetter {
	return func(c *Config, v any) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) overrideSetter {
	return func(c *Config, v any) error {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolSetter(field func(*Config) *bool) overrideSetter {
	return func(c *Config, v any) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// overrideFields maps every accepted override name to its setter.
var overrideFields = map[string]overrideSetter{
	"min_interval":               intSetter(func(c *Config) *int { return &c.MinInterval }),
	"max_interval":               intSetter(func(c *Config) *int { return &c.MaxInterval }),
	"default_interval":           intSetter(func(c *Config) *int { return &c.DefaultInterval }),
	"motion_threshold_high":      floatSetter(func(c *Config) *float64 { return &c.MotionThresholdHigh }),
	"motion_threshold_low":       floatSetter(func(c *Config) *float64 { return &c.MotionThresholdLow }),
	"motion_history_size":        intSetter(func(c *Config) *int { return &c.MotionHistorySize }),
	"motion_downscale_width":     intSetter(func(c *Config) *int { return &c.MotionDownscaleWidth }),
	"detection_change_threshold": floatSetter(func(c *Config) *float64 { return &c.DetectionChangeThreshold }),
	"id_switch_penalty_frames":   intSetter(func(c *Config) *int { return &c.IDSwitchPenaltyFrames }),
	"lock_on_boost_frames":       intSetter(func(c *Config) *int { return &c.LockOnBoostFrames }),
	"stability_window_frames":    intSetter(func(c *Config) *int { return &c.StabilityWindowFrames }),
	"max_telemetry_events":       intSetter(func(c *Config) *int { return &c.MaxTelemetryEvents }),
	"enable_motion":              boolSetter(func(c *Config) *bool { return &c.EnableMotion }),
	"enable_id_tracking":         boolSetter(func(c *Config) *bool { return &c.EnableIDTracking }),
	"enable_crowd_monitoring":    boolSetter(func(c *Config) *bool { return &c.EnableCrowdMonitoring }),
	"seek_boost_window_seconds": func(c *Config, v any) error {
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return err
		}
		c.SeekBoostWindow = time.Duration(secs * float64(time.Second))
		return nil
	},
}

// OverrideNames lists the accepted override keys, sorted.
func OverrideNames() []string {
	names := make([]string, 0, len(overrideFields))
	for name := range overrideFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides returns a copy of c with the named fields replaced.
// Unknown names and values that cannot be converted to the field's type are
// skipped; each one yields a diagnostic in the returned slice. Keys are
// applied in sorted order so diagnostics are deterministic.
func (c Config) WithOverrides(overrides map[string]any) (Config, []string) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diags []string
	for _, k := range keys {
		set, ok := overrideFields[k]
		if !ok {
			diags = append(diags, fmt.Sprintf("unknown config parameter: %s", k))
			continue
		}
		if err := set(&c, overrides[k]); err != nil {
			diags = append(diags, fmt.Sprintf("invalid value for %s: %v", k, err))
		}
	}
	return c, diags
}
