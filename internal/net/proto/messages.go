package proto

import (
	"encoding/json"
	"fmt"

	"rollsync/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	typeInputAck    = "inputAck"
	typeInputReject = "inputReject"
	typeHeartbeat   = "heartbeat"
	typeHitResult   = "hitResult"
	typeState       = "state"
)

// Client message type identifiers.
const (
	TypeInput     = "input"
	TypeHeartbeat = "heartbeat"
	TypeHitQuery  = "hitQuery"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeState     = typeState
	TypeHitResult = typeHitResult
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver     int    `json:"ver,omitempty" jsonschema:"title=Protocol version,minimum=1"`
	Type    string `json:"type" jsonschema:"title=Message type,enum=input,enum=heartbeat,enum=hitQuery"`
	Frame   uint64 `json:"frame,omitempty" jsonschema:"title=Simulation frame the payload targets"`
	MoveX   int16  `json:"moveX,omitempty" jsonschema:"title=Signed horizontal axis,description=Fixed-point axis in the range -32768..32767"`
	MoveY   int16  `json:"moveY,omitempty" jsonschema:"title=Signed vertical axis"`
	Buttons uint32 `json:"buttons,omitempty" jsonschema:"title=Pressed button bitmask"`
	SentAt  int64  `json:"sentAt,omitempty" jsonschema:"title=Client wall clock in unix milliseconds"`
	Target  string `json:"target,omitempty" jsonschema:"title=Entity id a hit query asks about"`
	FiredAt int64  `json:"firedAt,omitempty" jsonschema:"title=Client timestamp of the shot in unix milliseconds"`
	Ack     *uint64 `json:"ack,omitempty" jsonschema:"title=Latest state frame the client has applied"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientInput converts an input message into a simulation sample. Origin
// metadata is populated by the intake path when the sample is accepted.
func ClientInput(msg ClientMessage, peerID string) (sim.InputSample, bool) {
	if msg.Type != TypeInput {
		return sim.InputSample{}, false
	}
	return sim.InputSample{
		Frame:  sim.Frame(msg.Frame),
		PeerID: peerID,
		Vector: sim.ActionVector{
			MoveX:   msg.MoveX,
			MoveY:   msg.MoveY,
			Buttons: msg.Buttons,
		},
	}, true
}

// InputAck acknowledges that a peer's input was accepted for a frame.
type InputAck struct {
	Frame uint64
}

// EncodeInputAck renders an input acknowledgement response.
func EncodeInputAck(msg InputAck) ([]byte, error) {
	frame := struct {
		Ver   int    `json:"ver"`
		Type  string `json:"type"`
		Frame uint64 `json:"frame"`
	}{
		Ver:   Version,
		Type:  typeInputAck,
		Frame: msg.Frame,
	}
	return json.Marshal(frame)
}

// InputReject notifies the client that an input was refused.
type InputReject struct {
	Frame  uint64
	Reason string
	Retry  bool
}

// EncodeInputReject renders an input rejection response.
func EncodeInputReject(msg InputReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Frame  uint64 `json:"frame"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
	}{
		Ver:    Version,
		Type:   typeInputReject,
		Frame:  msg.Frame,
		Reason: msg.Reason,
	}
	if msg.Retry {
		frame.Retry = true
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// HitResult reports the rewound target state used to validate a hit query.
type HitResult struct {
	Target  string
	Frame   uint64
	X       float64
	Y       float64
	Heading float64
	Found   bool
}

// EncodeHitResult renders a hit query response.
func EncodeHitResult(msg HitResult) ([]byte, error) {
	frame := struct {
		Ver     int     `json:"ver"`
		Type    string  `json:"type"`
		Target  string  `json:"target"`
		Frame   uint64  `json:"frame"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Heading float64 `json:"heading"`
		Found   bool    `json:"found"`
	}{
		Ver:     Version,
		Type:    typeHitResult,
		Target:  msg.Target,
		Frame:   msg.Frame,
		X:       msg.X,
		Y:       msg.Y,
		Heading: msg.Heading,
		Found:   msg.Found,
	}
	return json.Marshal(frame)
}

// EntityWire captures the per-entity payload inside a state update.
type EntityWire struct {
	ID      string  `json:"id" jsonschema:"title=Entity id"`
	X       float64 `json:"x" jsonschema:"title=Horizontal position"`
	Y       float64 `json:"y" jsonschema:"title=Vertical position"`
	Heading float64 `json:"heading" jsonschema:"title=Facing angle in radians"`
}

type stateUpdate interface {
	ProtoStateUpdate()
}

// EncodeStateUpdate renders an authoritative state payload.
func EncodeStateUpdate(msg stateUpdate) ([]byte, error) {
	switch payload := msg.(type) {
	case StateUpdateV1:
		return EncodeStateUpdateV1(payload)
	case *StateUpdateV1:
		if payload == nil {
			return json.Marshal(payload)
		}
		return EncodeStateUpdateV1(*payload)
	default:
		return json.Marshal(msg)
	}
}

// StateUpdateV1 captures the version 1 websocket state payload layout.
type StateUpdateV1 struct {
	Ver        int               `json:"ver" jsonschema:"title=Protocol version"`
	Type       string            `json:"type" jsonschema:"title=Message type"`
	Frame      uint64            `json:"frame" jsonschema:"title=Authoritative frame the entities describe"`
	Entities   []EntityWire      `json:"entities" jsonschema:"title=Entity states at the frame"`
	Confirmed  map[string]uint64 `json:"confirmed,omitempty" jsonschema:"title=Last confirmed input frame per peer"`
	ServerTime int64             `json:"serverTime" jsonschema:"title=Server wall clock in unix milliseconds"`
}

// ProtoStateUpdate tags the struct as a websocket state payload.
func (StateUpdateV1) ProtoStateUpdate() {}

// EncodeStateUpdateV1 renders a versioned state payload.
func EncodeStateUpdateV1(msg StateUpdateV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeState
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

type joinResponse interface {
	ProtoJoinResponse()
}

// EncodeJoinResponse renders a join response payload.
func EncodeJoinResponse(msg joinResponse) ([]byte, error) {
	switch payload := msg.(type) {
	case JoinResponseV1:
		return EncodeJoinResponseV1(payload)
	case *JoinResponseV1:
		if payload == nil {
			return json.Marshal(payload)
		}
		return EncodeJoinResponseV1(*payload)
	default:
		return json.Marshal(msg)
	}
}

// JoinResponseV1 captures the version 1 join response layout.
type JoinResponseV1 struct {
	Ver        int          `json:"ver" jsonschema:"title=Protocol version"`
	ID         string       `json:"id" jsonschema:"title=Assigned peer id"`
	Token      string       `json:"token" jsonschema:"title=Session token presented on the websocket upgrade"`
	Frame      uint64       `json:"frame" jsonschema:"title=Frame the peer becomes a participant"`
	TickRate   int          `json:"tickRate" jsonschema:"title=Simulation ticks per second"`
	InputDelay int          `json:"inputDelay" jsonschema:"title=Frames of scheduled input delay"`
	Window     int          `json:"window" jsonschema:"title=Snapshot retention window in frames"`
	Entities   []EntityWire `json:"entities" jsonschema:"title=Entity states at the join frame"`
}

// ProtoJoinResponse tags the struct as a websocket join response payload.
func (JoinResponseV1) ProtoJoinResponse() {}

// EncodeJoinResponseV1 renders a versioned join response payload.
func EncodeJoinResponseV1(msg JoinResponseV1) ([]byte, error) {
	msg.Ver = Version
	return json.Marshal(msg)
}
