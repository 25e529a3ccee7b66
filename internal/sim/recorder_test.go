package sim

import "testing"

func TestRecorderStampsDelayedFrame(t *testing.T) {
	source := ControlSourceFunc(func() ActionVector {
		return ActionVector{MoveX: 10}
	})
	recorder := NewRecorder("peer-a", source, 2)

	sample := recorder.Record(5)
	if sample.Frame != 7 {
		t.Fatalf("expected sample for frame 7, got %d", sample.Frame)
	}
	if sample.PeerID != "peer-a" || sample.Origin != OriginConfirmed {
		t.Fatalf("unexpected sample identity: %+v", sample)
	}
	if sample.Vector.MoveX != 10 {
		t.Fatalf("expected polled vector, got %+v", sample.Vector)
	}
}

func TestRecorderRepeatsLastPolledState(t *testing.T) {
	recorder := NewRecorder("peer-a", ControlSourceFunc(func() ActionVector {
		return ActionVector{MoveY: -30}
	}), 0)

	sample := recorder.Record(1)
	if sample.Vector.MoveY != -30 {
		t.Fatalf("expected polled state, got %+v", sample.Vector)
	}

	// A nil source repeats the last polled state rather than going neutral.
	recorder.source = nil
	sample = recorder.Record(2)
	if sample.Vector.MoveY != -30 {
		t.Fatalf("expected repeated state, got %+v", sample.Vector)
	}
}

func TestRecorderZeroDelay(t *testing.T) {
	recorder := NewRecorder("peer-a", nil, 0)
	sample := recorder.Record(3)
	if sample.Frame != 3 || !sample.Vector.IsZero() {
		t.Fatalf("unexpected sample: %+v", sample)
	}
}
