package sim

import (
	"sync"
	"sync/atomic"
)

const (
	snapshotStaleWriteMetricKey = "sim_snapshot_stale_write_total"
	snapshotStoredMetricKey     = "sim_snapshot_stored_total"
)

// SnapshotStore retains the last W fully simulated frames in a fixed ring.
// Writes happen on the simulation goroutine; reads may happen concurrently
// (the lag compensation oracle runs on request-handling goroutines), so each
// slot is swapped through an atomic pointer and a reader always observes
// either the complete snapshot for a frame or the complete previous occupant
// of the slot, never a torn mix.
type SnapshotStore struct {
	slots   []atomic.Pointer[StateSnapshot]
	metrics telemetryMetrics

	mu     sync.Mutex
	latest Frame
	seeded bool
}

// NewSnapshotStore constructs a ring retaining the provided number of frames.
func NewSnapshotStore(window int, metrics telemetryMetrics) *SnapshotStore {
	if window < 1 {
		window = 1
	}
	return &SnapshotStore{
		slots:   make([]atomic.Pointer[StateSnapshot], window),
		metrics: metrics,
	}
}

// Window reports the ring capacity in frames.
func (s *SnapshotStore) Window() int {
	if s == nil {
		return 0
	}
	return len(s.slots)
}

// Put stores a snapshot, overwriting the slot frame mod W. A write older
// than the retention window is discarded and reported through metrics; it
// never crashes the caller.
func (s *SnapshotStore) Put(frame Frame, state WorldState) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	if s.seeded && frame+Frame(len(s.slots)) <= s.latest {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Add(snapshotStaleWriteMetricKey, 1)
		}
		return false
	}
	if !s.seeded || frame > s.latest {
		s.latest = frame
		s.seeded = true
	}
	snapshot := &StateSnapshot{Frame: frame, State: state.Clone()}
	s.slots[int(frame)%len(s.slots)].Store(snapshot)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Add(snapshotStoredMetricKey, 1)
	}
	return true
}

// Get returns a copy of the retained snapshot for the frame, if any.
func (s *SnapshotStore) Get(frame Frame) (WorldState, bool) {
	if s == nil {
		return WorldState{}, false
	}
	snapshot := s.slots[int(frame)%len(s.slots)].Load()
	if snapshot == nil || snapshot.Frame != frame {
		return WorldState{}, false
	}
	return snapshot.State.Clone(), true
}

// Peek returns the retained snapshot for the frame without cloning. Callers
// must treat the result as immutable.
func (s *SnapshotStore) Peek(frame Frame) (*StateSnapshot, bool) {
	if s == nil {
		return nil, false
	}
	snapshot := s.slots[int(frame)%len(s.slots)].Load()
	if snapshot == nil || snapshot.Frame != frame {
		return nil, false
	}
	return snapshot, true
}

// OldestRetainedFrame reports the lower bound of the retention window. A
// rollback target below this bound is unrecoverable.
func (s *SnapshotStore) OldestRetainedFrame() Frame {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		return 0
	}
	window := Frame(len(s.slots))
	if s.latest < window {
		return 0
	}
	return s.latest - window + 1
}

// LatestFrame reports the newest stored frame.
func (s *SnapshotStore) LatestFrame() (Frame, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seeded
}
