package server

// Input reject reasons surfaced to clients on the websocket.
const (
	InputRejectInvalidPayload = "invalid_payload"
	InputRejectUnknownPeer    = "unknown_peer"
	InputRejectQueueLimit     = "queue_limit"
	InputRejectFrameHorizon   = "frame_horizon"
	InputRejectFrameRetired   = "frame_retired"
)

const (
	defaultTickRate          = 60
	defaultInputDelay        = 2
	defaultWindow            = 128
	defaultPeerTimeoutFrames = 300
	defaultPendingCapacity   = 64
	defaultHeartbeatMillis   = 2000
)

// World bounds and movement tuning for the built-in stepper.
const (
	worldWidth  = 2048.0
	worldHeight = 2048.0
	moveSpeed   = 180.0
	actorHalf   = 16.0
)
