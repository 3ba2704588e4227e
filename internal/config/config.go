package config

import (
	"time"

	"videowall/internal/registry"
	pkgconfig "videowall/pkg/config"
)

// Config stores environment configuration for Bosun.
type Config struct {
	Port          string
	ServiceToken  string
	RedisURL      string
	ProvisionPath string

	// StreamHost is the address clients embed in SRT pull URLs. It points
	// at the splitter host, which is usually but not necessarily this box.
	StreamHost string

	FrameWidth  int
	FrameHeight int

	ActiveWithin   time.Duration
	InactiveWithin time.Duration
	SlotLiveness   time.Duration
	CleanupAfter   time.Duration

	SweepInterval    time.Duration
	SnapshotInterval time.Duration
}

// Load reads the Bosun configuration from environment variables.
func Load() Config {
	return Config{
		Port:          pkgconfig.GetEnv("PORT", "18090"),
		ServiceToken:  pkgconfig.GetEnv("SERVICE_TOKEN", ""),
		RedisURL:      pkgconfig.GetEnv("REDIS_URL", ""),
		ProvisionPath: pkgconfig.GetEnv("PROVISION_PATH", ""),
		StreamHost:    pkgconfig.GetEnv("STREAM_HOST", "localhost"),

		FrameWidth:  pkgconfig.GetEnvInt("FRAME_WIDTH", 1920),
		FrameHeight: pkgconfig.GetEnvInt("FRAME_HEIGHT", 1080),

		ActiveWithin:   pkgconfig.GetEnvDuration("CLIENT_ACTIVE_WITHIN", 30*time.Second),
		InactiveWithin: pkgconfig.GetEnvDuration("CLIENT_INACTIVE_WITHIN", 120*time.Second),
		SlotLiveness:   pkgconfig.GetEnvDuration("SLOT_LIVENESS", 60*time.Second),
		CleanupAfter:   pkgconfig.GetEnvDuration("CLIENT_CLEANUP_AFTER", 300*time.Second),

		SweepInterval:    pkgconfig.GetEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		SnapshotInterval: pkgconfig.GetEnvDuration("SNAPSHOT_INTERVAL", 15*time.Second),
	}
}

// Thresholds maps the configured staging windows into registry form.
func (c Config) Thresholds() registry.Thresholds {
	return registry.Thresholds{
		ActiveWithin:   c.ActiveWithin,
		InactiveWithin: c.InactiveWithin,
		SlotLiveness:   c.SlotLiveness,
		CleanupAfter:   c.CleanupAfter,
	}
}
