package sim

import "testing"

func testState(x float64) WorldState {
	return WorldState{Entities: map[string]EntityState{"e": {X: x}}}
}

func TestSnapshotStoreWraparound(t *testing.T) {
	store := NewSnapshotStore(4, nil)
	for frame := Frame(0); frame <= 9; frame++ {
		if !store.Put(frame, testState(float64(frame))) {
			t.Fatalf("expected put to succeed for frame %d", frame)
		}
	}

	latest, ok := store.LatestFrame()
	if !ok || latest != 9 {
		t.Fatalf("expected latest frame 9, got %d ok=%v", latest, ok)
	}
	if oldest := store.OldestRetainedFrame(); oldest != 6 {
		t.Fatalf("expected oldest retained frame 6, got %d", oldest)
	}

	for frame := Frame(6); frame <= 9; frame++ {
		state, ok := store.Get(frame)
		if !ok {
			t.Fatalf("expected frame %d to be retained", frame)
		}
		if state.Entities["e"].X != float64(frame) {
			t.Fatalf("frame %d holds wrong state: %+v", frame, state)
		}
	}
	if _, ok := store.Get(5); ok {
		t.Fatalf("expected frame 5 to be evicted")
	}
}

func TestSnapshotStoreRejectsStaleWrite(t *testing.T) {
	store := NewSnapshotStore(4, nil)
	for frame := Frame(0); frame <= 7; frame++ {
		store.Put(frame, testState(float64(frame)))
	}
	// Frame 3 is older than the window; the slot currently holds frame 7.
	if store.Put(3, testState(-1)) {
		t.Fatalf("expected stale write to be rejected")
	}
	state, ok := store.Get(7)
	if !ok || state.Entities["e"].X != 7 {
		t.Fatalf("stale write corrupted slot: %+v ok=%v", state, ok)
	}
}

func TestSnapshotStoreOverwriteWithinWindow(t *testing.T) {
	store := NewSnapshotStore(8, nil)
	for frame := Frame(0); frame <= 5; frame++ {
		store.Put(frame, testState(float64(frame)))
	}
	// Reconciliation rewrites a retained frame in place.
	if !store.Put(3, testState(99)) {
		t.Fatalf("expected in-window overwrite to succeed")
	}
	state, ok := store.Get(3)
	if !ok || state.Entities["e"].X != 99 {
		t.Fatalf("expected overwritten state, got %+v ok=%v", state, ok)
	}
	if latest, _ := store.LatestFrame(); latest != 5 {
		t.Fatalf("overwrite moved latest frame to %d", latest)
	}
}

func TestSnapshotStoreGetReturnsClone(t *testing.T) {
	store := NewSnapshotStore(4, nil)
	store.Put(0, testState(1))
	state, _ := store.Get(0)
	entity := state.Entities["e"]
	entity.X = 42
	state.Entities["e"] = entity
	again, _ := store.Get(0)
	if again.Entities["e"].X != 1 {
		t.Fatalf("mutating a returned state leaked into the store")
	}
}

func TestSnapshotStoreOldestBeforeWrap(t *testing.T) {
	store := NewSnapshotStore(8, nil)
	store.Put(0, testState(0))
	store.Put(1, testState(1))
	if oldest := store.OldestRetainedFrame(); oldest != 0 {
		t.Fatalf("expected oldest 0 before the ring fills, got %d", oldest)
	}
}
