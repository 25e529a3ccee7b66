package network

import (
	"context"

	"rollsync/server/logging"
)

const (
	// EventInputConflict is emitted when two confirmed samples for the same
	// peer and frame disagree. The first arrival stays authoritative.
	EventInputConflict logging.EventType = "network.input_conflict"
	// EventStaleInput is emitted when a confirmed sample arrives for a frame
	// the input window no longer covers.
	EventStaleInput logging.EventType = "network.stale_input"
	// EventIntakeReject is emitted when an inbound packet fails validation
	// before reaching a peer buffer.
	EventIntakeReject logging.EventType = "network.intake_reject"
)

// InputConflictPayload records the losing sample of a confirmed conflict for
// forensics; the buffer keeps the first arrival.
type InputConflictPayload struct {
	Frame    uint64 `json:"frame"`
	MoveX    int16  `json:"moveX"`
	MoveY    int16  `json:"moveY"`
	Buttons  uint32 `json:"buttons"`
	Resolved string `json:"resolved"`
}

// InputConflict publishes a warning for a conflicting confirmed sample;
// possible retransmission bug or a misbehaving peer.
func InputConflict(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InputConflictPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventInputConflict,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// StaleInputPayload identifies the frame a late sample targeted.
type StaleInputPayload struct {
	Frame uint64 `json:"frame"`
}

// StaleInput publishes a debug event for a harmlessly late sample.
func StaleInput(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StaleInputPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventStaleInput,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// IntakeRejectPayload names the validation that failed.
type IntakeRejectPayload struct {
	Reason string `json:"reason"`
	Frame  uint64 `json:"frame,omitempty"`
}

// IntakeReject publishes a debug event for a rejected inbound packet.
func IntakeReject(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IntakeRejectPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventIntakeReject,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
