package sim

// Frame identifies one discrete step of the simulation clock. Frames advance
// by exactly one per step and are never reused.
type Frame uint64

// InputOrigin distinguishes network-verified samples from locally synthesized
// stand-ins.
type InputOrigin uint8

const (
	// OriginPredicted marks a sample synthesized locally while the real
	// value is still in flight.
	OriginPredicted InputOrigin = iota
	// OriginConfirmed marks a sample received over the network or recorded
	// from the local controls.
	OriginConfirmed
)

// String returns the wire-friendly name for the origin.
func (o InputOrigin) String() string {
	switch o {
	case OriginPredicted:
		return "predicted"
	case OriginConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// ActionVector carries one tick of control state. Fields are integers so
// equality between a prediction and the confirmed value is an exact bit
// comparison on every platform.
type ActionVector struct {
	MoveX   int16  `json:"moveX"`
	MoveY   int16  `json:"moveY"`
	Buttons uint32 `json:"buttons"`
}

// IsZero reports whether the vector matches the neutral input.
func (v ActionVector) IsZero() bool {
	return v == ActionVector{}
}

// InputSample binds an action vector to the peer and frame it applies to.
type InputSample struct {
	Frame  Frame        `json:"frame"`
	PeerID string       `json:"peerId"`
	Vector ActionVector `json:"vector"`
	Origin InputOrigin  `json:"origin"`
}
