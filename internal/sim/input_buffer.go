package sim

const (
	inputPendingDropMetricKey = "sim_input_pending_drop_total"
	inputConflictMetricKey    = "sim_input_conflict_total"
)

// ConfirmOutcome reports how a confirmed sample interacted with the buffer.
type ConfirmOutcome uint8

const (
	// ConfirmRecorded means the frame had no sample yet.
	ConfirmRecorded ConfirmOutcome = iota
	// ConfirmMatchedPrediction means the confirmed payload equals the
	// prediction already used; no resimulation is required.
	ConfirmMatchedPrediction
	// ConfirmSupersededPrediction means a prediction was replaced by a
	// confirmed payload that differs from it.
	ConfirmSupersededPrediction
	// ConfirmDuplicate means an identical confirmed sample was already
	// recorded for the frame.
	ConfirmDuplicate
	// ConfirmConflict means a different confirmed sample was already
	// recorded for the frame. The first arrival stays authoritative.
	ConfirmConflict
	// ConfirmStale means the frame has already left the buffer window so
	// the sample can no longer be reconciled against what was simulated.
	ConfirmStale
)

// String returns a log-friendly name for the outcome.
func (o ConfirmOutcome) String() string {
	switch o {
	case ConfirmRecorded:
		return "recorded"
	case ConfirmMatchedPrediction:
		return "matched_prediction"
	case ConfirmSupersededPrediction:
		return "superseded_prediction"
	case ConfirmDuplicate:
		return "duplicate"
	case ConfirmConflict:
		return "conflict"
	case ConfirmStale:
		return "stale"
	default:
		return "unknown"
	}
}

type inputSlot struct {
	frame  Frame
	vector ActionVector
	origin InputOrigin
	valid  bool
}

// PeerInputBuffer holds one peer's per-frame input samples in a fixed ring.
// The network goroutine enqueues into the bounded pending channel (single
// writer per peer); the simulation tick drains it synchronously and is the
// only goroutine touching the ring, so the ring itself needs no lock.
type PeerInputBuffer struct {
	peerID  string
	slots   []inputSlot
	pending chan InputSample
	metrics telemetryMetrics

	last      ActionVector
	lastFrame Frame
	hasLast   bool

	lastConfirmed    Frame
	hasLastConfirmed bool
}

// NewPeerInputBuffer constructs a buffer with a bounded intake channel for
// the network path. Capacity must cover the snapshot retention window plus
// the accepted frames-ahead horizon, so a confirmed sample for a future
// frame can never land in the slot of a frame rollback may still replay.
func NewPeerInputBuffer(peerID string, capacity, pendingCapacity int, metrics telemetryMetrics) *PeerInputBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if pendingCapacity < 1 {
		pendingCapacity = 1
	}
	return &PeerInputBuffer{
		peerID:  peerID,
		slots:   make([]inputSlot, capacity),
		pending: make(chan InputSample, pendingCapacity),
		metrics: metrics,
	}
}

// PeerID reports the owning peer.
func (b *PeerInputBuffer) PeerID() string {
	if b == nil {
		return ""
	}
	return b.peerID
}

// Enqueue stages a sample from the network path without blocking. It reports
// false when the pending channel is full; the sample is dropped and counted.
func (b *PeerInputBuffer) Enqueue(sample InputSample) bool {
	if b == nil {
		return false
	}
	select {
	case b.pending <- sample:
		return true
	default:
		if b.metrics != nil {
			b.metrics.Add(inputPendingDropMetricKey, 1)
		}
		return false
	}
}

// DrainPending returns every staged sample in arrival order. Only the
// simulation tick may call it.
func (b *PeerInputBuffer) DrainPending() []InputSample {
	if b == nil {
		return nil
	}
	var drained []InputSample
	for {
		select {
		case sample := <-b.pending:
			drained = append(drained, sample)
		default:
			return drained
		}
	}
}

// Confirm records a confirmed sample and reports how it interacted with what
// the buffer already held for that frame. A confirmed sample never
// overwrites an earlier confirmed sample with a different payload.
func (b *PeerInputBuffer) Confirm(sample InputSample) ConfirmOutcome {
	if b == nil {
		return ConfirmStale
	}
	slot := &b.slots[int(sample.Frame)%len(b.slots)]
	if slot.valid && slot.frame > sample.Frame {
		return ConfirmStale
	}

	outcome := ConfirmRecorded
	if slot.valid && slot.frame == sample.Frame {
		switch {
		case slot.origin == OriginConfirmed && slot.vector == sample.Vector:
			outcome = ConfirmDuplicate
		case slot.origin == OriginConfirmed:
			if b.metrics != nil {
				b.metrics.Add(inputConflictMetricKey, 1)
			}
			b.noteConfirmed(sample.Frame)
			return ConfirmConflict
		case slot.vector == sample.Vector:
			outcome = ConfirmMatchedPrediction
		default:
			outcome = ConfirmSupersededPrediction
		}
	}

	slot.frame = sample.Frame
	slot.vector = sample.Vector
	slot.origin = OriginConfirmed
	slot.valid = true
	b.noteConfirmed(sample.Frame)
	if !b.hasLast || sample.Frame >= b.lastFrame {
		b.last = sample.Vector
		b.lastFrame = sample.Frame
		b.hasLast = true
	}
	if outcome == ConfirmSupersededPrediction {
		// Predictions beyond this frame repeated input that is now known
		// to be wrong. Drop them so resimulation re-predicts from the
		// newest confirmed sample.
		b.invalidatePredictionsAfter(sample.Frame)
	}
	return outcome
}

func (b *PeerInputBuffer) invalidatePredictionsAfter(frame Frame) {
	for i := range b.slots {
		slot := &b.slots[i]
		if slot.valid && slot.origin == OriginPredicted && slot.frame > frame {
			slot.valid = false
		}
	}
}

// Best returns the input to simulate the frame with: the confirmed sample if
// present, otherwise a prediction that repeats the most recent known input
// (neutral when none exists). Predictions are written into the ring so a
// later confirmation can be compared against exactly what was simulated.
func (b *PeerInputBuffer) Best(frame Frame) (ActionVector, InputOrigin) {
	if b == nil {
		return ActionVector{}, OriginPredicted
	}
	slot := &b.slots[int(frame)%len(b.slots)]
	if slot.valid && slot.frame == frame {
		return slot.vector, slot.origin
	}
	prediction := ActionVector{}
	if b.hasLast {
		prediction = b.last
	}
	slot.frame = frame
	slot.vector = prediction
	slot.origin = OriginPredicted
	slot.valid = true
	return prediction, OriginPredicted
}

// Recorded returns the sample currently held for the frame, if the window
// still covers it.
func (b *PeerInputBuffer) Recorded(frame Frame) (InputSample, bool) {
	if b == nil {
		return InputSample{}, false
	}
	slot := b.slots[int(frame)%len(b.slots)]
	if !slot.valid || slot.frame != frame {
		return InputSample{}, false
	}
	return InputSample{Frame: frame, PeerID: b.peerID, Vector: slot.vector, Origin: slot.origin}, true
}

// LastConfirmedFrame reports the newest frame with a confirmed sample. The
// second result is false until the first confirmation arrives.
func (b *PeerInputBuffer) LastConfirmedFrame() (Frame, bool) {
	if b == nil {
		return 0, false
	}
	return b.lastConfirmed, b.hasLastConfirmed
}

func (b *PeerInputBuffer) noteConfirmed(frame Frame) {
	if !b.hasLastConfirmed || frame > b.lastConfirmed {
		b.lastConfirmed = frame
		b.hasLastConfirmed = true
	}
}
