package sim

import (
	"errors"
	"reflect"
	"testing"
)

// sumStepper integrates each participant's axes so every frame's state is a
// pure function of the inputs that produced it.
func sumStepper(prev WorldState, inputs map[string]ActionVector) WorldState {
	next := WorldState{Entities: make(map[string]EntityState, len(inputs))}
	for id, in := range inputs {
		entity := prev.Entities[id]
		entity.X += float64(in.MoveX)
		entity.Y += float64(in.MoveY)
		next.Entities[id] = entity
	}
	return next
}

func newTestSimulator(t *testing.T, cfg SimulatorConfig) *Simulator {
	t.Helper()
	sim := NewSimulator(StepperFunc(sumStepper), cfg, Deps{})
	if sim == nil {
		t.Fatalf("expected simulator")
	}
	sim.Start(WorldState{})
	return sim
}

func submit(t *testing.T, sim *Simulator, peerID string, frame Frame, vector ActionVector) {
	t.Helper()
	ok, err := sim.SubmitRemote(InputSample{Frame: frame, PeerID: peerID, Vector: vector})
	if err != nil || !ok {
		t.Fatalf("submit for %s frame %d failed: ok=%v err=%v", peerID, frame, ok, err)
	}
}

func TestSimulatorLateInputRollbackConverges(t *testing.T) {
	cfg := SimulatorConfig{Window: 32, PendingCapacity: 16}

	bInput := func(frame Frame) ActionVector {
		if frame == 10 {
			return ActionVector{MoveX: -100}
		}
		return ActionVector{MoveX: 100}
	}

	// Reference run: every confirmation arrives before its frame.
	reference := newTestSimulator(t, cfg)
	for _, peerID := range []string{"a", "b", "c"} {
		reference.AddPeer(peerID, 1)
	}
	for frame := Frame(1); frame <= 15; frame++ {
		submit(t, reference, "a", frame, ActionVector{MoveX: 1})
		submit(t, reference, "c", frame, ActionVector{MoveY: 1})
		if frame <= 10 {
			submit(t, reference, "b", frame, bInput(frame))
		}
		if _, err := reference.Tick(); err != nil {
			t.Fatalf("reference tick %d failed: %v", frame, err)
		}
	}

	// Delayed run: b's frame 10 confirmation arrives after frame 14 has
	// been simulated on a prediction.
	delayed := newTestSimulator(t, cfg)
	for _, peerID := range []string{"a", "b", "c"} {
		delayed.AddPeer(peerID, 1)
	}
	for frame := Frame(1); frame <= 14; frame++ {
		submit(t, delayed, "a", frame, ActionVector{MoveX: 1})
		submit(t, delayed, "c", frame, ActionVector{MoveY: 1})
		if frame <= 9 {
			submit(t, delayed, "b", frame, bInput(frame))
		}
		if _, err := delayed.Tick(); err != nil {
			t.Fatalf("delayed tick %d failed: %v", frame, err)
		}
	}

	submit(t, delayed, "a", 15, ActionVector{MoveX: 1})
	submit(t, delayed, "c", 15, ActionVector{MoveY: 1})
	submit(t, delayed, "b", 10, bInput(10))
	result, err := delayed.Tick()
	if err != nil {
		t.Fatalf("rollback tick failed: %v", err)
	}
	if result.RolledBackTo != 10 {
		t.Fatalf("expected rollback to frame 10, got %d", result.RolledBackTo)
	}
	if result.Resimulated != 5 {
		t.Fatalf("expected 5 resimulated frames, got %d", result.Resimulated)
	}

	for frame := Frame(10); frame <= 15; frame++ {
		want, ok := reference.Store().Get(frame)
		if !ok {
			t.Fatalf("reference lost frame %d", frame)
		}
		got, ok := delayed.Store().Get(frame)
		if !ok {
			t.Fatalf("delayed run lost frame %d", frame)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("frame %d diverged after rollback:\nwant %+v\ngot  %+v", frame, want, got)
		}
	}
}

func TestSimulatorMatchingConfirmationSkipsResimulation(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 32, PendingCapacity: 16})
	sim.AddPeer("a", 1)
	sim.AddPeer("b", 1)

	steady := ActionVector{MoveX: 7}
	for frame := Frame(1); frame <= 4; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		submit(t, sim, "b", frame, steady)
		if _, err := sim.Tick(); err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
	}

	// Frames 5 through 8 run on predictions that repeat b's steady input.
	for frame := Frame(5); frame <= 8; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		if _, err := sim.Tick(); err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
	}

	// The late confirmations match what was simulated, so nothing rolls back.
	for frame := Frame(5); frame <= 8; frame++ {
		submit(t, sim, "b", frame, steady)
	}
	submit(t, sim, "a", 9, ActionVector{MoveX: 1})
	result, err := sim.Tick()
	if err != nil {
		t.Fatalf("confirmation tick failed: %v", err)
	}
	if result.RolledBackTo != 0 || result.Resimulated != 0 {
		t.Fatalf("expected no rollback, got %+v", result)
	}
	if total := sim.ResimulatedTotal(); total != 0 {
		t.Fatalf("expected zero resimulated frames, got %d", total)
	}
}

func TestSimulatorFatalDesyncOnEvictedFrame(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 7, PendingCapacity: 16})
	sim.AddPeer("a", 1)
	sim.AddPeer("b", 1)

	for frame := Frame(1); frame <= 20; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		if frame != 10 {
			submit(t, sim, "b", frame, ActionVector{MoveY: 1})
		}
		if _, err := sim.Tick(); err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
	}

	// Frame 10 was simulated from a prediction and its restore snapshot left
	// the window frames ago; this contradicting confirmation is unrecoverable.
	submit(t, sim, "b", 10, ActionVector{MoveY: -1})
	_, err := sim.Tick()
	if err == nil {
		t.Fatalf("expected fatal desync")
	}
	if !IsDesync(err) {
		t.Fatalf("expected desync error, got %v", err)
	}
	var desync *DesyncError
	if !errors.As(err, &desync) {
		t.Fatalf("expected typed desync error, got %T", err)
	}
	if desync.Target != 10 || desync.OldestRetained != 14 {
		t.Fatalf("unexpected desync bounds: %+v", desync)
	}

	// The failure latches and the retained history stays valid.
	if _, err := sim.Tick(); !IsDesync(err) {
		t.Fatalf("expected latched error, got %v", err)
	}
	if sim.Failed() == nil {
		t.Fatalf("expected Failed to report the latched error")
	}
	if _, ok := sim.Store().Get(20); !ok {
		t.Fatalf("expected frame 20 to survive the failure")
	}
	if frame := sim.CurrentFrame(); frame != 20 {
		t.Fatalf("expected current frame to stay at 20, got %d", frame)
	}
}

func TestSimulatorEarlyConfirmationKeepsRetainedInputs(t *testing.T) {
	cfg := SimulatorConfig{Window: 8, PendingCapacity: 16}
	bInput := func(frame Frame) ActionVector {
		if frame == 10 {
			return ActionVector{MoveY: -3}
		}
		return ActionVector{MoveY: 3}
	}

	// Reference run: every confirmation on time, plus the same early sample
	// for frame 18 the delayed run receives.
	reference := newTestSimulator(t, cfg)
	reference.AddPeer("a", 1)
	reference.AddPeer("b", 1)
	for frame := Frame(1); frame <= 14; frame++ {
		submit(t, reference, "a", frame, ActionVector{MoveX: 1})
		submit(t, reference, "b", frame, bInput(frame))
		if _, err := reference.Tick(); err != nil {
			t.Fatalf("reference tick %d failed: %v", frame, err)
		}
	}
	submit(t, reference, "b", 18, bInput(18))
	if _, err := reference.Tick(); err != nil {
		t.Fatalf("reference tick 15 failed: %v", err)
	}

	// Delayed run: frame 10 is missing until after an early confirmation for
	// frame 18 has already been accepted. The early sample must not overwrite
	// any frame the rollback still needs.
	delayed := newTestSimulator(t, cfg)
	delayed.AddPeer("a", 1)
	delayed.AddPeer("b", 1)
	for frame := Frame(1); frame <= 14; frame++ {
		submit(t, delayed, "a", frame, ActionVector{MoveX: 1})
		if frame != 10 {
			submit(t, delayed, "b", frame, bInput(frame))
		}
		if _, err := delayed.Tick(); err != nil {
			t.Fatalf("delayed tick %d failed: %v", frame, err)
		}
	}
	submit(t, delayed, "b", 18, bInput(18))
	submit(t, delayed, "b", 10, bInput(10))
	result, err := delayed.Tick()
	if err != nil {
		t.Fatalf("tick after late delivery failed: %v", err)
	}
	if result.RolledBackTo != 10 {
		t.Fatalf("expected rollback to frame 10, got %d", result.RolledBackTo)
	}
	if result.Resimulated != 5 {
		t.Fatalf("expected 5 resimulated frames, got %d", result.Resimulated)
	}
	if delayed.Failed() != nil {
		t.Fatalf("unexpected fatal error: %v", delayed.Failed())
	}

	buffer, ok := delayed.Peers().Buffer("b")
	if !ok {
		t.Fatalf("expected buffer for peer b")
	}
	if sample, ok := buffer.Recorded(10); !ok || sample.Origin != OriginConfirmed || sample.Vector != bInput(10) {
		t.Fatalf("expected confirmed sample for frame 10, got %+v ok=%v", sample, ok)
	}
	if sample, ok := buffer.Recorded(18); !ok || sample.Origin != OriginConfirmed {
		t.Fatalf("expected early confirmation for frame 18 to be retained, got %+v ok=%v", sample, ok)
	}

	for frame := Frame(10); frame <= 15; frame++ {
		want, ok := reference.Store().Get(frame)
		if !ok {
			t.Fatalf("reference missing frame %d", frame)
		}
		got, ok := delayed.Store().Get(frame)
		if !ok {
			t.Fatalf("delayed run missing frame %d", frame)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("frame %d diverged after rollback: want %+v got %+v", frame, want, got)
		}
	}
}

func TestSimulatorDropsConfirmationsBeyondHorizon(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 8, PendingCapacity: 16})
	sim.AddPeer("a", 1)

	submit(t, sim, "a", 1, ActionVector{MoveX: 1})
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("tick 1 failed: %v", err)
	}

	// The horizon defaults to the window: frame 10 is past current+8.
	submit(t, sim, "a", 10, ActionVector{MoveX: 5})
	result, err := sim.Tick()
	if err != nil {
		t.Fatalf("tick 2 failed: %v", err)
	}
	if result.RolledBackTo != 0 || result.Resimulated != 0 {
		t.Fatalf("expected no rollback from a dropped sample, got %+v", result)
	}

	buffer, ok := sim.Peers().Buffer("a")
	if !ok {
		t.Fatalf("expected buffer for peer a")
	}
	if _, ok := buffer.Recorded(10); ok {
		t.Fatalf("expected sample beyond the horizon to be dropped")
	}
	if last, ok := buffer.LastConfirmedFrame(); !ok || last != 1 {
		t.Fatalf("expected last confirmed frame 1, got %d ok=%v", last, ok)
	}
}

func TestSimulatorReplayDeterminism(t *testing.T) {
	run := func() *Simulator {
		sim := newTestSimulator(t, SimulatorConfig{Window: 16, PendingCapacity: 16})
		sim.AddPeer("a", 1)
		sim.AddPeer("b", 3)
		for frame := Frame(1); frame <= 12; frame++ {
			submit(t, sim, "a", frame, ActionVector{MoveX: int16(frame)})
			if frame >= 3 && frame%2 == 1 {
				submit(t, sim, "b", frame, ActionVector{MoveY: int16(frame)})
			}
			if _, err := sim.Tick(); err != nil {
				t.Fatalf("tick %d failed: %v", frame, err)
			}
		}
		return sim
	}

	first := run()
	second := run()
	for frame := Frame(1); frame <= 12; frame++ {
		a, okA := first.Store().Get(frame)
		b, okB := second.Store().Get(frame)
		if !okA || !okB {
			t.Fatalf("frame %d missing from a run", frame)
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("replay diverged at frame %d", frame)
		}
	}
}

func TestSimulatorMarksSilentPeersStale(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 32, PendingCapacity: 16, PeerTimeoutFrames: 3})
	sim.AddPeer("a", 1)
	sim.AddPeer("b", 1)

	submit(t, sim, "b", 1, ActionVector{MoveY: 5})

	var staleAt Frame
	for frame := Frame(1); frame <= 10; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		result, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
		for _, peerID := range result.StaleMarked {
			if peerID == "b" && staleAt == 0 {
				staleAt = result.Frame
			}
		}
	}
	if staleAt == 0 {
		t.Fatalf("expected b to be marked stale")
	}
	if status, _ := sim.Peers().Status("b"); status != PeerStale {
		t.Fatalf("expected stale status, got %v", status)
	}

	// Stale peers keep being simulated on their frozen input.
	state, ok := sim.Store().Get(10)
	if !ok {
		t.Fatalf("expected frame 10")
	}
	if _, ok := state.Entities["b"]; !ok {
		t.Fatalf("expected stale peer to stay in the simulated set")
	}
}

func TestSimulatorMarksNeverConfirmingPeerStale(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 32, PendingCapacity: 16, PeerTimeoutFrames: 3})
	sim.AddPeer("a", 1)
	sim.AddPeer("b", 1)

	// b never sends a single confirmation; staleness counts from its join
	// frame instead of a last confirmed frame.
	var staleAt Frame
	for frame := Frame(1); frame <= 10; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		result, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
		for _, peerID := range result.StaleMarked {
			if peerID == "b" && staleAt == 0 {
				staleAt = result.Frame
			}
		}
	}
	if staleAt == 0 {
		t.Fatalf("expected b to be marked stale without ever confirming")
	}
	if status, _ := sim.Peers().Status("b"); status != PeerStale {
		t.Fatalf("expected stale status, got %v", status)
	}
}

func TestSimulatorDeterministicRemoval(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 4, PendingCapacity: 16})
	sim.AddPeer("a", 1)
	sim.AddPeer("b", 1)

	for frame := Frame(1); frame <= 3; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		submit(t, sim, "b", frame, ActionVector{MoveY: 1})
		if _, err := sim.Tick(); err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
	}

	sim.Peers().ScheduleRemoval("b", 5)

	var removed []string
	for frame := Frame(4); frame <= 12; frame++ {
		submit(t, sim, "a", frame, ActionVector{MoveX: 1})
		result, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick %d failed: %v", frame, err)
		}
		removed = append(removed, result.RemovedPeers...)
	}

	state, ok := sim.Store().Get(12)
	if !ok {
		t.Fatalf("expected frame 12")
	}
	if _, present := state.Entities["b"]; present {
		t.Fatalf("expected b's entity to leave the simulation at frame 5")
	}
	if !reflect.DeepEqual(removed, []string{"b"}) {
		t.Fatalf("expected exactly one finalized removal, got %v", removed)
	}
	if status, _ := sim.Peers().Status("b"); status != PeerRemoved {
		t.Fatalf("expected removed status, got %v", status)
	}
}

func TestSimulatorSubmitLocalNeverRollsBack(t *testing.T) {
	sim := newTestSimulator(t, SimulatorConfig{Window: 16, InputDelay: 2, PendingCapacity: 16})
	sim.AddPeer("local", 1)
	recorder := NewRecorder("local", ControlSourceFunc(func() ActionVector {
		return ActionVector{MoveX: 3}
	}), 2)

	for i := 0; i < 10; i++ {
		if err := sim.SubmitLocal(recorder.Record(sim.CurrentFrame())); err != nil {
			t.Fatalf("submit local failed: %v", err)
		}
		result, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick failed: %v", err)
		}
		if result.RolledBackTo != 0 {
			t.Fatalf("local input forced a rollback at frame %d", result.Frame)
		}
	}
	if total := sim.ResimulatedTotal(); total != 0 {
		t.Fatalf("expected zero resimulated frames, got %d", total)
	}
}
