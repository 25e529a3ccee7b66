package sim

import (
	"context"

	"rollsync/server/logging"
	lifecyclelog "rollsync/server/logging/lifecycle"
	netlog "rollsync/server/logging/network"
	simlog "rollsync/server/logging/simulation"
)

const (
	resimulatedFramesMetricKey = "sim_resimulated_frames_total"
	rollbackMetricKey          = "sim_rollback_total"
	fatalDesyncMetricKey       = "sim_fatal_desync_total"
)

// SimulatorConfig tunes the rollback simulator.
type SimulatorConfig struct {
	// Window is the snapshot retention capacity W in frames.
	Window int
	// InputDelay is the offset D applied by the local recorder.
	InputDelay Frame
	// PeerTimeoutFrames is how many frames without confirmed input mark a
	// peer stale. Zero disables the check.
	PeerTimeoutFrames Frame
	// PendingCapacity bounds each peer's network intake channel.
	PendingCapacity int
	// InputHorizon is how far past the current frame a confirmed sample may
	// target. Input buffers are sized Window+InputHorizon so an early sample
	// can never overwrite a frame the snapshot window still needs for
	// resimulation. Zero defaults to Window.
	InputHorizon Frame
}

// TickResult summarizes one simulation tick.
type TickResult struct {
	Frame        Frame
	Resimulated  int
	RolledBackTo Frame
	Conflicts    int
	StaleMarked  []string
	RemovedPeers []string
}

// Simulator is the deterministic frame-stepping engine. It drains every
// peer's pending inputs at the start of a tick, rolls back and resimulates
// when a late confirmation contradicts a prediction, then advances one
// frame. All methods must be called from the single simulation goroutine.
type Simulator struct {
	cfg     SimulatorConfig
	stepper Stepper
	store   *SnapshotStore
	peers   *PeerRegistry
	deps    Deps

	current Frame
	started bool

	dirty      bool
	dirtyFrame Frame

	resimulatedTotal uint64
	failed           error
}

// NewSimulator wires the state-transition function to the snapshot store and
// peer registry.
func NewSimulator(stepper Stepper, cfg SimulatorConfig, deps Deps) *Simulator {
	if stepper == nil {
		return nil
	}
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	if cfg.PendingCapacity < 1 {
		cfg.PendingCapacity = 64
	}
	if cfg.InputHorizon < 1 {
		cfg.InputHorizon = Frame(cfg.Window)
	}
	if cfg.InputHorizon <= cfg.InputDelay {
		cfg.InputHorizon = cfg.InputDelay + 1
	}
	var metrics telemetryMetrics
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}
	return &Simulator{
		cfg:     cfg,
		stepper: stepper,
		store:   NewSnapshotStore(cfg.Window, metrics),
		peers:   NewPeerRegistry(),
		deps:    deps,
	}
}

// Start seeds the genesis snapshot at frame 0.
func (s *Simulator) Start(initial WorldState) {
	if s == nil || s.started {
		return
	}
	s.store.Put(0, initial)
	s.current = 0
	s.started = true
}

// CurrentFrame reports the newest fully simulated frame.
func (s *Simulator) CurrentFrame() Frame {
	if s == nil {
		return 0
	}
	return s.current
}

// Store exposes the snapshot ring for read-only collaborators such as the
// lag compensation oracle.
func (s *Simulator) Store() *SnapshotStore {
	if s == nil {
		return nil
	}
	return s.store
}

// Peers exposes the peer registry.
func (s *Simulator) Peers() *PeerRegistry {
	if s == nil {
		return nil
	}
	return s.peers
}

// InputHorizon reports how far past the current frame a confirmed sample may
// target. The intake path rejects anything beyond it.
func (s *Simulator) InputHorizon() Frame {
	if s == nil {
		return 0
	}
	return s.cfg.InputHorizon
}

// Failed returns the latched fatal error, if any.
func (s *Simulator) Failed() error {
	if s == nil {
		return nil
	}
	return s.failed
}

// ResimulatedTotal reports how many frames have been resimulated since
// start. Tests use it to assert the no-op optimization.
func (s *Simulator) ResimulatedTotal() uint64 {
	if s == nil {
		return 0
	}
	return s.resimulatedTotal
}

// AddPeer registers a participant whose input counts from joinFrame onward
// and returns its input buffer for the network intake path.
func (s *Simulator) AddPeer(peerID string, joinFrame Frame) *PeerInputBuffer {
	if s == nil || peerID == "" {
		return nil
	}
	var metrics telemetryMetrics
	if s.deps.Metrics != nil {
		metrics = s.deps.Metrics
	}
	buffer := NewPeerInputBuffer(peerID, s.cfg.Window+int(s.cfg.InputHorizon), s.cfg.PendingCapacity, metrics)
	joined := s.peers.Join(peerID, joinFrame, buffer)
	lifecyclelog.PeerJoined(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
		lifecyclelog.PeerJoinedPayload{JoinFrame: uint64(joinFrame)}, nil)
	return joined
}

// SubmitLocal records the local recorder's sample for this tick. Local
// samples target future frames (current + delay) so they never trigger a
// rollback.
func (s *Simulator) SubmitLocal(sample InputSample) error {
	if s == nil {
		return ErrNotStarted
	}
	buffer, ok := s.peers.Buffer(sample.PeerID)
	if !ok {
		return ErrUnknownPeer
	}
	buffer.Confirm(sample)
	return nil
}

// SubmitRemote enqueues a confirmed sample arriving from the network. It is
// safe to call from connection goroutines; the sample is applied at the start
// of the next tick. Returns false when the peer's pending queue is full.
func (s *Simulator) SubmitRemote(sample InputSample) (bool, error) {
	if s == nil {
		return false, ErrNotStarted
	}
	buffer, ok := s.peers.Buffer(sample.PeerID)
	if !ok {
		return false, ErrUnknownPeer
	}
	sample.Origin = OriginConfirmed
	return buffer.Enqueue(sample), nil
}

// Tick drains pending inputs, rolls back if a prediction was contradicted,
// and advances exactly one frame.
func (s *Simulator) Tick() (TickResult, error) {
	if s == nil || !s.started {
		return TickResult{}, ErrNotStarted
	}
	if s.failed != nil {
		return TickResult{}, s.failed
	}

	result := TickResult{}
	if err := s.drainInputs(&result); err != nil {
		return result, err
	}
	s.markStalePeers(&result)

	if s.dirty {
		target := s.dirtyFrame
		resimmed, err := s.resimulate(target)
		if err != nil {
			return result, err
		}
		s.dirty = false
		result.Resimulated = resimmed
		result.RolledBackTo = target
		if s.deps.Metrics != nil {
			s.deps.Metrics.Add(rollbackMetricKey, 1)
		}
		simlog.Rollback(context.Background(), s.deps.Publisher, uint64(s.current), simlog.RollbackPayload{
			TargetFrame: uint64(target),
			Resimulated: resimmed,
		}, nil)
	}

	if err := s.advance(); err != nil {
		return result, err
	}
	result.Frame = s.current
	result.RemovedPeers = s.applyLifecycle()
	return result, nil
}

// Resimulate restores the snapshot before from and re-steps every frame up
// to the current one with the best available inputs. The reconciliation
// controller invokes it after overwriting a snapshot with authoritative
// state.
func (s *Simulator) Resimulate(from Frame) (int, error) {
	if s == nil || !s.started {
		return 0, ErrNotStarted
	}
	if s.failed != nil {
		return 0, s.failed
	}
	return s.resimulate(from)
}

func (s *Simulator) drainInputs(result *TickResult) error {
	for _, peerID := range s.peers.Known() {
		buffer, ok := s.peers.Buffer(peerID)
		if !ok {
			continue
		}
		for _, sample := range buffer.DrainPending() {
			if sample.Frame > s.current+s.cfg.InputHorizon {
				netlog.IntakeReject(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
					netlog.IntakeRejectPayload{Reason: "input_horizon", Frame: uint64(sample.Frame)}, nil)
				continue
			}
			switch outcome := buffer.Confirm(sample); outcome {
			case ConfirmSupersededPrediction:
				if sample.Frame <= s.current {
					s.markDirty(sample.Frame)
				}
			case ConfirmConflict:
				result.Conflicts++
				netlog.InputConflict(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
					netlog.InputConflictPayload{
						Frame:    uint64(sample.Frame),
						MoveX:    sample.Vector.MoveX,
						MoveY:    sample.Vector.MoveY,
						Buttons:  sample.Vector.Buttons,
						Resolved: "first_arrival",
					}, nil)
				if s.deps.Logger != nil {
					s.deps.Logger.Printf("[input] conflicting confirmed sample peer=%s frame=%d kept first arrival", peerID, sample.Frame)
				}
			case ConfirmStale:
				if sample.Frame <= s.current {
					return s.fail(&DesyncError{
						Target:         sample.Frame,
						OldestRetained: s.store.OldestRetainedFrame(),
						Reason:         "confirmed input arrived for an evicted frame",
					})
				}
				netlog.StaleInput(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
					netlog.StaleInputPayload{Frame: uint64(sample.Frame)}, nil)
			}
		}
	}
	return nil
}

func (s *Simulator) markStalePeers(result *TickResult) {
	if s.cfg.PeerTimeoutFrames == 0 {
		return
	}
	for _, peerID := range s.peers.Known() {
		status, ok := s.peers.Status(peerID)
		if !ok || status != PeerActive {
			continue
		}
		buffer, ok := s.peers.Buffer(peerID)
		if !ok {
			continue
		}
		last, confirmed := buffer.LastConfirmedFrame()
		if !confirmed {
			// A peer that joined and never confirmed counts from its
			// join frame, otherwise it would stay active forever.
			joined, ok := s.peers.JoinFrame(peerID)
			if !ok {
				continue
			}
			last = joined
		}
		if s.current > last && s.current-last > s.cfg.PeerTimeoutFrames {
			if s.peers.MarkStale(peerID) {
				result.StaleMarked = append(result.StaleMarked, peerID)
				lifecyclelog.PeerStale(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
					lifecyclelog.PeerStalePayload{LastConfirmedFrame: uint64(last), TimeoutFrames: uint64(s.cfg.PeerTimeoutFrames)}, nil)
			}
		}
	}
}

func (s *Simulator) resimulate(from Frame) (int, error) {
	if from > s.current {
		return 0, nil
	}
	if from == 0 {
		return 0, s.fail(&DesyncError{Target: 0, OldestRetained: s.store.OldestRetainedFrame(), Reason: "rollback would precede the genesis frame"})
	}
	restore := from - 1
	oldest := s.store.OldestRetainedFrame()
	if restore < oldest {
		return 0, s.fail(&DesyncError{Target: from, OldestRetained: oldest, Reason: "restore frame evicted from snapshot window"})
	}
	state, ok := s.store.Get(restore)
	if !ok {
		return 0, s.fail(&DesyncError{Target: from, OldestRetained: oldest, Reason: "restore frame missing from snapshot window"})
	}
	resimmed := 0
	for frame := from; frame <= s.current; frame++ {
		state = s.stepper.Step(state, s.collectInputs(frame))
		s.store.Put(frame, state)
		resimmed++
	}
	s.resimulatedTotal += uint64(resimmed)
	if s.deps.Metrics != nil && resimmed > 0 {
		s.deps.Metrics.Add(resimulatedFramesMetricKey, uint64(resimmed))
	}
	return resimmed, nil
}

func (s *Simulator) advance() error {
	next := s.current + 1
	prev, ok := s.store.Get(s.current)
	if !ok {
		return s.fail(&DesyncError{Target: s.current, OldestRetained: s.store.OldestRetainedFrame(), Reason: "current frame missing from snapshot window"})
	}
	state := s.stepper.Step(prev, s.collectInputs(next))
	s.store.Put(next, state)
	s.current = next
	return nil
}

func (s *Simulator) collectInputs(frame Frame) map[string]ActionVector {
	members := s.peers.MembersAt(frame)
	inputs := make(map[string]ActionVector, len(members))
	for _, peerID := range members {
		buffer, ok := s.peers.Buffer(peerID)
		if !ok {
			inputs[peerID] = ActionVector{}
			continue
		}
		vector, _ := buffer.Best(frame)
		inputs[peerID] = vector
	}
	return inputs
}

func (s *Simulator) applyLifecycle() []string {
	removed := s.peers.ApplyLifecycle(s.current, s.store.OldestRetainedFrame())
	for _, peerID := range removed {
		lifecyclelog.PeerRemoved(context.Background(), s.deps.Publisher, uint64(s.current), peerRef(peerID),
			lifecyclelog.PeerRemovedPayload{}, nil)
	}
	return removed
}

func (s *Simulator) markDirty(frame Frame) {
	if !s.dirty || frame < s.dirtyFrame {
		s.dirtyFrame = frame
		s.dirty = true
	}
}

func (s *Simulator) fail(err *DesyncError) error {
	s.failed = err
	if s.deps.Metrics != nil {
		s.deps.Metrics.Add(fatalDesyncMetricKey, 1)
	}
	simlog.FatalDesync(context.Background(), s.deps.Publisher, uint64(s.current), simlog.FatalDesyncPayload{
		TargetFrame:    uint64(err.Target),
		OldestRetained: uint64(err.OldestRetained),
		Reason:         err.Reason,
	}, nil)
	if s.deps.Logger != nil {
		s.deps.Logger.Printf("[desync] %v", err)
	}
	return err
}

func peerRef(peerID string) logging.EntityRef {
	return logging.EntityRef{ID: peerID, Kind: logging.EntityKindPeer}
}
