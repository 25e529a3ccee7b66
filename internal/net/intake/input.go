package intake

import (
	server "rollsync/server"
	"rollsync/server/internal/net/proto"
	"rollsync/server/internal/sim"
)

// InputContext carries the hub hooks the staging path needs. Function fields
// keep the package testable without a live hub.
type InputContext struct {
	Submit  func(sim.InputSample) (bool, string)
	HasPeer func(string) bool
}

// StageInput validates an input message and hands the sample to the
// simulation intake queue. The returned reason is one of the server's
// InputReject constants when ok is false.
func StageInput(ctx InputContext, peerID string, msg proto.ClientMessage) (sim.InputSample, bool, string) {
	var zero sim.InputSample

	sample, ok := proto.ClientInput(msg, peerID)
	if !ok {
		return zero, false, server.InputRejectInvalidPayload
	}
	if sample.Frame == 0 {
		return zero, false, server.InputRejectInvalidPayload
	}

	if ctx.HasPeer != nil && !ctx.HasPeer(peerID) {
		return zero, false, server.InputRejectUnknownPeer
	}

	if ctx.Submit == nil {
		return zero, false, server.InputRejectQueueLimit
	}
	if ok, reason := ctx.Submit(sample); !ok {
		return zero, false, reason
	}

	return sample, true, ""
}
