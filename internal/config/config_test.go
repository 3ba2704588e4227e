package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STREAM_HOST", "")
	t.Setenv("CLIENT_CLEANUP_AFTER", "")

	cfg := Load()
	if cfg.Port != "18090" {
		t.Errorf("port = %q, want 18090", cfg.Port)
	}
	if cfg.StreamHost != "localhost" {
		t.Errorf("stream host = %q, want localhost", cfg.StreamHost)
	}
	if cfg.FrameWidth != 1920 || cfg.FrameHeight != 1080 {
		t.Errorf("frame = %dx%d, want 1920x1080", cfg.FrameWidth, cfg.FrameHeight)
	}

	th := cfg.Thresholds()
	if th.ActiveWithin != 30*time.Second || th.InactiveWithin != 120*time.Second {
		t.Errorf("staging windows = %v/%v", th.ActiveWithin, th.InactiveWithin)
	}
	if th.SlotLiveness != 60*time.Second || th.CleanupAfter != 300*time.Second {
		t.Errorf("slot/cleanup windows = %v/%v", th.SlotLiveness, th.CleanupAfter)
	}
	if cfg.SweepInterval != 30*time.Second || cfg.SnapshotInterval != 15*time.Second {
		t.Errorf("job intervals = %v/%v", cfg.SweepInterval, cfg.SnapshotInterval)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("STREAM_HOST", "wall.local")
	t.Setenv("FRAME_WIDTH", "3840")
	t.Setenv("FRAME_HEIGHT", "2160")
	t.Setenv("CLIENT_CLEANUP_AFTER", "600") // bare seconds
	t.Setenv("SNAPSHOT_INTERVAL", "45s")

	cfg := Load()
	if cfg.Port != "9999" || cfg.StreamHost != "wall.local" {
		t.Errorf("cfg = %q/%q", cfg.Port, cfg.StreamHost)
	}
	if cfg.FrameWidth != 3840 || cfg.FrameHeight != 2160 {
		t.Errorf("frame = %dx%d, want 3840x2160", cfg.FrameWidth, cfg.FrameHeight)
	}
	if cfg.Thresholds().CleanupAfter != 600*time.Second {
		t.Errorf("cleanup = %v, want 600s", cfg.Thresholds().CleanupAfter)
	}
	if cfg.SnapshotInterval != 45*time.Second {
		t.Errorf("snapshot interval = %v, want 45s", cfg.SnapshotInterval)
	}
}
