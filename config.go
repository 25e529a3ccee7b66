package server

import (
	"time"

	"rollsync/server/internal/sim"
	"rollsync/server/internal/telemetry"
)

// Config captures the tunables used when constructing a hub.
type Config struct {
	TickRate          int           `json:"tickRate"`
	InputDelay        int           `json:"inputDelay"`
	Window            int           `json:"window"`
	PeerTimeoutFrames int           `json:"peerTimeoutFrames"`
	PendingCapacity   int           `json:"pendingCapacity"`
	HeartbeatInterval time.Duration `json:"-"`
	SessionTTL        time.Duration `json:"-"`

	// Stepper overrides the built-in movement stepper. It must be a pure
	// function of the previous state and the frame's inputs.
	Stepper sim.Stepper `json:"-"`

	Logger telemetry.Logger `json:"-"`
}

// Normalized returns a config with defaults applied.
func (cfg Config) Normalized() Config {
	normalized := cfg
	if normalized.TickRate <= 0 {
		normalized.TickRate = defaultTickRate
	}
	if normalized.InputDelay < 0 {
		normalized.InputDelay = defaultInputDelay
	}
	if normalized.Window <= 1 {
		normalized.Window = defaultWindow
	}
	if normalized.PeerTimeoutFrames <= 0 {
		normalized.PeerTimeoutFrames = defaultPeerTimeoutFrames
	}
	if normalized.PendingCapacity <= 0 {
		normalized.PendingCapacity = defaultPendingCapacity
	}
	if normalized.HeartbeatInterval <= 0 {
		normalized.HeartbeatInterval = defaultHeartbeatMillis * time.Millisecond
	}
	return normalized
}

// DefaultConfig returns the tuning used by the production server. Zero is a
// valid input delay, so the default is applied here rather than in Normalized.
func DefaultConfig() Config {
	return Config{InputDelay: defaultInputDelay}.Normalized()
}

// TickRate reports the default simulation rate for diagnostics payloads.
func TickRate() int {
	return defaultTickRate
}

// HeartbeatInterval reports the default heartbeat cadence.
func HeartbeatInterval() time.Duration {
	return defaultHeartbeatMillis * time.Millisecond
}
