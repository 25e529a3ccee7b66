package lifecycle

import (
	"context"

	"rollsync/server/logging"
)

const (
	// EventPeerJoined is emitted when a peer enters the simulated set.
	EventPeerJoined logging.EventType = "lifecycle.peer_joined"
	// EventPeerStale is emitted when a peer exceeds the input timeout.
	EventPeerStale logging.EventType = "lifecycle.peer_stale"
	// EventPeerRemoved is emitted when a scheduled removal is finalized.
	EventPeerRemoved logging.EventType = "lifecycle.peer_removed"
)

// PeerJoinedPayload records the frame a peer's input participates from.
type PeerJoinedPayload struct {
	JoinFrame uint64 `json:"joinFrame"`
}

// PeerJoined publishes an info event for a peer entering the session.
func PeerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PeerStalePayload records how far behind the peer's confirmed input is.
type PeerStalePayload struct {
	LastConfirmedFrame uint64 `json:"lastConfirmedFrame"`
	TimeoutFrames      uint64 `json:"timeoutFrames"`
}

// PeerStale publishes a warning for a peer that stopped sending input. The
// peer keeps simulating frozen at its last input until removal is agreed.
func PeerStale(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerStalePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerStale,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// PeerRemovedPayload is reserved for future removal detail.
type PeerRemovedPayload struct{}

// PeerRemoved publishes an info event when a peer leaves the simulated set
// at its agreed frame boundary.
func PeerRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerRemovedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPeerRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
