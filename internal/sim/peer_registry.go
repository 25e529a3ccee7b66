package sim

import "sort"

// PeerStatus tags a peer's lifecycle stage.
type PeerStatus uint8

const (
	// PeerActive peers contribute input to every simulated frame.
	PeerActive PeerStatus = iota
	// PeerStale peers have stopped sending input. They stay in the
	// simulated set, frozen at their last input, until a removal frame is
	// agreed.
	PeerStale
	// PeerRemoved peers have left the simulated set.
	PeerRemoved
)

// String returns a log-friendly name for the status.
func (s PeerStatus) String() string {
	switch s {
	case PeerActive:
		return "active"
	case PeerStale:
		return "stale"
	case PeerRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

type peerEntry struct {
	buffer    *PeerInputBuffer
	status    PeerStatus
	joinFrame Frame

	removeFrame    Frame
	removeschedule bool
}

// PeerRegistry tracks every participant with an explicit join/leave
// lifecycle. Membership for a given frame is a pure function of the frame
// number and the scheduled join/removal frames, so every peer resolves the
// same simulated set during rollback.
type PeerRegistry struct {
	peers map[string]*peerEntry
	order []string
}

// NewPeerRegistry constructs an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]*peerEntry)}
}

// Join registers a peer whose input participates from joinFrame onward.
// Joining an already known peer is a no-op returning the existing buffer.
func (r *PeerRegistry) Join(peerID string, joinFrame Frame, buffer *PeerInputBuffer) *PeerInputBuffer {
	if r == nil || peerID == "" {
		return nil
	}
	if entry, ok := r.peers[peerID]; ok {
		return entry.buffer
	}
	r.peers[peerID] = &peerEntry{buffer: buffer, status: PeerActive, joinFrame: joinFrame}
	r.order = append(r.order, peerID)
	sort.Strings(r.order)
	return buffer
}

// Buffer returns the input buffer for a known peer.
func (r *PeerRegistry) Buffer(peerID string) (*PeerInputBuffer, bool) {
	if r == nil {
		return nil, false
	}
	entry, ok := r.peers[peerID]
	if !ok || entry.status == PeerRemoved {
		return nil, false
	}
	return entry.buffer, true
}

// Status reports the lifecycle stage of a peer.
func (r *PeerRegistry) Status(peerID string) (PeerStatus, bool) {
	if r == nil {
		return PeerRemoved, false
	}
	entry, ok := r.peers[peerID]
	if !ok {
		return PeerRemoved, false
	}
	return entry.status, true
}

// JoinFrame reports the frame from which the peer's input participates.
func (r *PeerRegistry) JoinFrame(peerID string) (Frame, bool) {
	if r == nil {
		return 0, false
	}
	entry, ok := r.peers[peerID]
	if !ok {
		return 0, false
	}
	return entry.joinFrame, true
}

// MarkStale flags a peer that has stopped sending input. The peer keeps
// being simulated with its frozen input until a removal frame applies.
func (r *PeerRegistry) MarkStale(peerID string) bool {
	if r == nil {
		return false
	}
	entry, ok := r.peers[peerID]
	if !ok || entry.status != PeerActive {
		return false
	}
	entry.status = PeerStale
	return true
}

// ScheduleRemoval fixes the frame at which the peer leaves the simulated
// set. The frame must be agreed by all participants out of band; the
// registry only guarantees it is applied at that exact frame boundary.
func (r *PeerRegistry) ScheduleRemoval(peerID string, frame Frame) bool {
	if r == nil {
		return false
	}
	entry, ok := r.peers[peerID]
	if !ok || entry.status == PeerRemoved {
		return false
	}
	if entry.removeschedule && entry.removeFrame <= frame {
		return false
	}
	entry.removeFrame = frame
	entry.removeschedule = true
	return true
}

// RemovalFrame reports the scheduled removal frame for a peer, if any.
func (r *PeerRegistry) RemovalFrame(peerID string) (Frame, bool) {
	if r == nil {
		return 0, false
	}
	entry, ok := r.peers[peerID]
	if !ok || !entry.removeschedule {
		return 0, false
	}
	return entry.removeFrame, true
}

// ApplyLifecycle finalizes removals whose frame has been simulated. Entries
// flip to PeerRemoved once the simulation advances past their removal frame
// so late rollbacks before that frame still see them.
func (r *PeerRegistry) ApplyLifecycle(current Frame, oldestRetained Frame) []string {
	if r == nil {
		return nil
	}
	var removed []string
	for _, peerID := range r.order {
		entry := r.peers[peerID]
		if entry.status == PeerRemoved || !entry.removeschedule {
			continue
		}
		if entry.removeFrame < oldestRetained && entry.removeFrame <= current {
			entry.status = PeerRemoved
			entry.buffer = nil
			removed = append(removed, peerID)
		}
	}
	return removed
}

// MembersAt returns, in deterministic order, the peers that participate in
// the given frame: joined at or before it and not yet removed at it.
func (r *PeerRegistry) MembersAt(frame Frame) []string {
	if r == nil {
		return nil
	}
	members := make([]string, 0, len(r.order))
	for _, peerID := range r.order {
		entry := r.peers[peerID]
		if entry.joinFrame > frame {
			continue
		}
		if entry.removeschedule && entry.removeFrame <= frame {
			continue
		}
		members = append(members, peerID)
	}
	return members
}

// Known returns every peer id the registry has seen, in deterministic order.
func (r *PeerRegistry) Known() []string {
	if r == nil {
		return nil
	}
	known := make([]string, len(r.order))
	copy(known, r.order)
	return known
}
