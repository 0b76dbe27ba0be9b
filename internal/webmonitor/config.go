package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr string
	// Keepalive is the SSE comment interval when no decisions arrive.
	Keepalive time.Duration
	// TelemetryEvents bounds the telemetry mirror served by /api/sampling/telemetry.
	TelemetryEvents int
	// ClientBuffer is the per-subscriber queue; slow clients miss events.
	ClientBuffer int
}

// DefaultConfig returns the settings used by the sampler CLI.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Keepalive:       15 * time.Second,
		TelemetryEvents: 1000,
		ClientBuffer:    16,
	}
}
