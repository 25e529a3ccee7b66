package server

import (
	"testing"
	"time"
)

func TestConfigNormalizedAppliesDefaults(t *testing.T) {
	cfg := Config{}.Normalized()

	if cfg.TickRate != defaultTickRate {
		t.Fatalf("expected default tick rate, got %d", cfg.TickRate)
	}
	if cfg.Window != defaultWindow {
		t.Fatalf("expected default window, got %d", cfg.Window)
	}
	if cfg.PeerTimeoutFrames != defaultPeerTimeoutFrames {
		t.Fatalf("expected default peer timeout, got %d", cfg.PeerTimeoutFrames)
	}
	if cfg.PendingCapacity != defaultPendingCapacity {
		t.Fatalf("expected default pending capacity, got %d", cfg.PendingCapacity)
	}
	if cfg.HeartbeatInterval != defaultHeartbeatMillis*time.Millisecond {
		t.Fatalf("expected default heartbeat interval, got %v", cfg.HeartbeatInterval)
	}
}

func TestConfigNormalizedKeepsZeroInputDelay(t *testing.T) {
	cfg := Config{}.Normalized()
	if cfg.InputDelay != 0 {
		t.Fatalf("expected zero delay to survive normalization, got %d", cfg.InputDelay)
	}

	if delay := DefaultConfig().InputDelay; delay != defaultInputDelay {
		t.Fatalf("expected the production default delay, got %d", delay)
	}
}

func TestConfigNormalizedKeepsOverrides(t *testing.T) {
	cfg := Config{
		TickRate:          30,
		InputDelay:        4,
		Window:            64,
		PeerTimeoutFrames: 90,
		PendingCapacity:   8,
	}.Normalized()

	if cfg.TickRate != 30 || cfg.InputDelay != 4 || cfg.Window != 64 || cfg.PeerTimeoutFrames != 90 || cfg.PendingCapacity != 8 {
		t.Fatalf("expected overrides to survive normalization: %+v", cfg)
	}
}

func TestConfigNormalizedRejectsDegenerateWindow(t *testing.T) {
	if cfg := (Config{Window: 1}).Normalized(); cfg.Window != defaultWindow {
		t.Fatalf("expected a one frame window to fall back to the default, got %d", cfg.Window)
	}
	if cfg := (Config{InputDelay: -3}).Normalized(); cfg.InputDelay != defaultInputDelay {
		t.Fatalf("expected a negative delay to fall back to the default, got %d", cfg.InputDelay)
	}
}
