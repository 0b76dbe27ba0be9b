// Package config loads the process configuration of the sampler CLI.
//
// Values are layered: built-in defaults, then a YAML file, then
// SAMPLER_-prefixed environment variables (SAMPLER_INPUT_FPS for input.fps),
// then explicit overrides such as command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SAMPLER"

// DefaultConfigName is searched for (as .yaml/.yml) when no file is given.
const DefaultConfigName = "sampler"

// DefaultConfigPaths are searched in order for DefaultConfigName.
var DefaultConfigPaths = []string{".", "/etc/frame-sampler"}

// Config is the full process configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Input    InputConfig    `mapstructure:"input"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	// Output is where the run result JSON goes; "-" is stdout.
	Output string `mapstructure:"output" validate:"required"`
	// Sampling holds sampler overrides by field name, e.g. min_interval.
	Sampling map[string]any `mapstructure:"sampling"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error silent none DEBUG INFO WARN ERROR SILENT"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Color  bool   `mapstructure:"color"`
}

// ServerConfig holds listen addresses. An empty address disables the server.
type ServerConfig struct {
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	MonitorAddr  string        `mapstructure:"monitor_addr"`
	SSEKeepalive time.Duration `mapstructure:"sse_keepalive" validate:"gte=0s"`
	// Linger keeps the servers up after the run until interrupted.
	Linger bool `mapstructure:"linger"`
}

type InputConfig struct {
	FramesDir  string  `mapstructure:"frames_dir" validate:"required"`
	Detections string  `mapstructure:"detections"`
	FPS        float64 `mapstructure:"fps" validate:"gte=0"`
	MaxFrames  int     `mapstructure:"max_frames" validate:"gte=0"`
	Adaptive   bool    `mapstructure:"adaptive"`
	// FixedStride is used when Adaptive is off.
	FixedStride int `mapstructure:"fixed_stride" validate:"gte=1"`
	// LockOnFrames and SeekFrames inject the override signals at those indices.
	LockOnFrames []int `mapstructure:"lock_on_frames"`
	SeekFrames   []int `mapstructure:"seek_frames"`
}

type RecorderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputDir  string `mapstructure:"output_dir" validate:"required_if=Enabled true"`
	BufferSize int    `mapstructure:"buffer_size" validate:"gte=0"`
}

var defaults = map[string]any{
	"log.level":            "info",
	"log.format":           "console",
	"log.color":            true,
	"server.metrics_addr":  "",
	"server.monitor_addr":  "",
	"server.sse_keepalive": 15 * time.Second,
	"server.linger":        false,
	"input.frames_dir":     "",
	"input.detections":     "",
	"input.fps":            0.0,
	"input.max_frames":     0,
	"input.adaptive":       true,
	"input.fixed_stride":   1,
	"input.lock_on_frames": []int{},
	"input.seek_frames":    []int{},
	"recorder.enabled":     false,
	"recorder.output_dir":  "./telemetry",
	"recorder.buffer_size": 1024,
	"output":               "-",
	"sampling":             map[string]any{},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration. path may be empty to search the default
// locations; a missing default file is not an error. overrides are keyed
// like "input.fps" and win over every other source.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		for _, p := range DefaultConfigPaths {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("configuration validation failed: %s fails %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
