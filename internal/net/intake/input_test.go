package intake

import (
	"testing"

	server "rollsync/server"
	"rollsync/server/internal/net/proto"
	"rollsync/server/internal/sim"
)

func TestStageInputAccepts(t *testing.T) {
	var submitted sim.InputSample
	ctx := InputContext{
		Submit: func(sample sim.InputSample) (bool, string) {
			submitted = sample
			return true, ""
		},
		HasPeer: func(string) bool { return true },
	}

	msg := proto.ClientMessage{Type: proto.TypeInput, Frame: 8, MoveX: 10}
	sample, ok, reason := StageInput(ctx, "peer-a", msg)
	if !ok || reason != "" {
		t.Fatalf("expected acceptance, got ok=%v reason=%q", ok, reason)
	}
	if sample.PeerID != "peer-a" || sample.Frame != 8 {
		t.Fatalf("unexpected sample: %+v", sample)
	}
	if submitted.Frame != 8 {
		t.Fatalf("expected sample to reach the submit hook, got %+v", submitted)
	}
}

func TestStageInputRejectsNonInputMessage(t *testing.T) {
	ctx := InputContext{Submit: func(sim.InputSample) (bool, string) { return true, "" }}
	if _, ok, reason := StageInput(ctx, "peer-a", proto.ClientMessage{Type: proto.TypeHeartbeat}); ok || reason != server.InputRejectInvalidPayload {
		t.Fatalf("expected invalid payload, got ok=%v reason=%q", ok, reason)
	}
}

func TestStageInputRejectsGenesisFrame(t *testing.T) {
	ctx := InputContext{Submit: func(sim.InputSample) (bool, string) { return true, "" }}
	msg := proto.ClientMessage{Type: proto.TypeInput, Frame: 0}
	if _, ok, reason := StageInput(ctx, "peer-a", msg); ok || reason != server.InputRejectInvalidPayload {
		t.Fatalf("expected invalid payload for frame 0, got ok=%v reason=%q", ok, reason)
	}
}

func TestStageInputRejectsUnknownPeer(t *testing.T) {
	ctx := InputContext{
		Submit:  func(sim.InputSample) (bool, string) { return true, "" },
		HasPeer: func(string) bool { return false },
	}
	msg := proto.ClientMessage{Type: proto.TypeInput, Frame: 4}
	if _, ok, reason := StageInput(ctx, "peer-a", msg); ok || reason != server.InputRejectUnknownPeer {
		t.Fatalf("expected unknown peer, got ok=%v reason=%q", ok, reason)
	}
}

func TestStageInputPropagatesSubmitReject(t *testing.T) {
	ctx := InputContext{
		Submit: func(sim.InputSample) (bool, string) {
			return false, server.InputRejectQueueLimit
		},
	}
	msg := proto.ClientMessage{Type: proto.TypeInput, Frame: 4}
	if _, ok, reason := StageInput(ctx, "peer-a", msg); ok || reason != server.InputRejectQueueLimit {
		t.Fatalf("expected queue limit, got ok=%v reason=%q", ok, reason)
	}
}
