package server

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rollsync/server/internal/lagcomp"
	"rollsync/server/internal/net/auth"
	"rollsync/server/internal/net/proto"
	"rollsync/server/internal/sim"
	"rollsync/server/internal/telemetry"
	"rollsync/server/logging"
	netlog "rollsync/server/logging/network"
	simlog "rollsync/server/logging/simulation"
)

// Hub owns the authoritative simulation and every live subscriber. All
// engine access goes through its mutex; the rollback simulator itself is
// single-goroutine by contract.
type Hub struct {
	mu          sync.Mutex
	cfg         Config
	engine      *sim.Simulator
	oracle      *lagcomp.Oracle
	auth        *auth.Auth
	subscribers map[string]*subscriber
	epoch       time.Time
	telemetry   *telemetryCounters
	logger      telemetry.Logger
	metrics     *logging.Metrics
	publisher   logging.Publisher
}

type subscriber struct {
	conn          *websocket.Conn
	mu            sync.Mutex
	lastAck       atomic.Uint64
	lastHeartbeat time.Time
	rtt           time.Duration
}

// WriteMessage serialises writes to the underlying connection.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// StoreLastAck records the newest state frame the client reported applying.
func (s *subscriber) StoreLastAck(frame uint64) {
	for {
		current := s.lastAck.Load()
		if frame <= current {
			return
		}
		if s.lastAck.CompareAndSwap(current, frame) {
			return
		}
	}
}

// LastAck returns the newest state frame the client reported applying.
func (s *subscriber) LastAck() uint64 {
	return s.lastAck.Load()
}

// NewHub constructs a hub with the default config and no event router.
func NewHub() (*Hub, error) {
	return NewHubWithConfig(DefaultConfig(), nil)
}

// NewHubWithConfig constructs a hub around a fresh simulation. The router may
// be nil, in which case structured events are dropped.
func NewHubWithConfig(cfg Config, router *logging.Router) (*Hub, error) {
	cfg = cfg.Normalized()

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	var publisher logging.Publisher = logging.NopPublisher()
	if router != nil {
		publisher = router
	}

	stepper := cfg.Stepper
	if stepper == nil {
		stepper = DefaultStepper(cfg.TickRate)
	}

	sessions, err := auth.New("rollsync", cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	metrics := logging.NewMetrics()
	stdLogger := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			stdLogger = candidate
		}
	}

	engine := sim.NewSimulator(stepper, sim.SimulatorConfig{
		Window:            cfg.Window,
		InputDelay:        sim.Frame(cfg.InputDelay),
		PeerTimeoutFrames: sim.Frame(cfg.PeerTimeoutFrames),
		PendingCapacity:   cfg.PendingCapacity,
	}, sim.Deps{
		Logger:    stdLogger,
		Metrics:   metrics,
		Clock:     logging.SystemClock{},
		Publisher: publisher,
	})

	epoch := time.Now()
	engine.Start(sim.WorldState{})

	hub := &Hub{
		cfg:         cfg,
		engine:      engine,
		oracle:      lagcomp.NewOracle(engine.Store(), lagcomp.Config{TickRate: cfg.TickRate, Epoch: epoch}),
		auth:        sessions,
		subscribers: make(map[string]*subscriber),
		epoch:       epoch,
		telemetry:   newTelemetryCounters(),
		logger:      logger,
		metrics:     metrics,
		publisher:   publisher,
	}
	return hub, nil
}

// CurrentConfig returns the hub's normalized configuration.
func (h *Hub) CurrentConfig() Config {
	return h.cfg
}

// CurrentFrame reports the latest simulated frame.
func (h *Hub) CurrentFrame() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint64(h.engine.CurrentFrame())
}

// Metrics exposes the counter registry shared with the engine.
func (h *Hub) Metrics() *logging.Metrics {
	return h.metrics
}

// Join registers a new peer, mints its session token, and returns the
// bootstrap payload. The peer participates from the frame after the current
// one so every replica agrees on when its entity appears.
func (h *Hub) Join() (proto.JoinResponseV1, error) {
	peerID := "peer-" + uuid.NewString()

	token, err := h.auth.MintToken(peerID)
	if err != nil {
		return proto.JoinResponseV1{}, err
	}

	h.mu.Lock()
	joinFrame := h.engine.CurrentFrame() + 1
	h.engine.AddPeer(peerID, joinFrame)
	entities := h.entitiesLocked()
	h.mu.Unlock()

	return proto.JoinResponseV1{
		ID:         peerID,
		Token:      token,
		Frame:      uint64(joinFrame),
		TickRate:   h.cfg.TickRate,
		InputDelay: h.cfg.InputDelay,
		Window:     h.cfg.Window,
		Entities:   entities,
	}, nil
}

// Authorize checks that the session token was minted for the given peer.
func (h *Hub) Authorize(peerID, token string) bool {
	subject, err := h.auth.ParseToken(token)
	if err != nil {
		return false
	}
	return subject == peerID
}

// Subscribe associates a websocket connection with a joined peer and returns
// the initial state payload to send.
func (h *Hub) Subscribe(peerID string, conn *websocket.Conn) (*subscriber, proto.StateUpdateV1, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.engine.Peers().Status(peerID); !ok {
		return nil, proto.StateUpdateV1{}, false
	}

	if existing, ok := h.subscribers[peerID]; ok {
		existing.conn.Close()
	}

	sub := &subscriber{conn: conn, lastHeartbeat: time.Now()}
	h.subscribers[peerID] = sub
	return sub, h.stateUpdateLocked(), true
}

// Disconnect drops the peer's connection and schedules its deterministic
// removal one frame ahead, so in-flight rollbacks still see the peer.
func (h *Hub) Disconnect(peerID string) bool {
	h.mu.Lock()
	sub, subOK := h.subscribers[peerID]
	if subOK {
		delete(h.subscribers, peerID)
	}
	_, peerOK := h.engine.Peers().Status(peerID)
	if peerOK {
		h.engine.Peers().ScheduleRemoval(peerID, h.engine.CurrentFrame()+1)
	}
	h.mu.Unlock()

	if subOK {
		sub.conn.Close()
	}
	return peerOK
}

// SubmitInput validates frame bounds and hands a remote sample to the
// engine's intake queue. The returned reason is one of the InputReject
// constants when ok is false.
func (h *Hub) SubmitInput(sample sim.InputSample) (bool, string) {
	h.mu.Lock()
	current := h.engine.CurrentFrame()
	oldest := h.engine.Store().OldestRetainedFrame()
	horizon := h.engine.InputHorizon()

	if sample.Frame == 0 || sample.Frame < oldest {
		h.mu.Unlock()
		h.rejectInput(current, sample, InputRejectFrameRetired)
		return false, InputRejectFrameRetired
	}
	if sample.Frame > current+horizon {
		h.mu.Unlock()
		h.rejectInput(current, sample, InputRejectFrameHorizon)
		return false, InputRejectFrameHorizon
	}

	accepted, err := h.engine.SubmitRemote(sample)
	h.mu.Unlock()

	if err != nil {
		h.rejectInput(current, sample, InputRejectUnknownPeer)
		return false, InputRejectUnknownPeer
	}
	if !accepted {
		h.rejectInput(current, sample, InputRejectQueueLimit)
		return false, InputRejectQueueLimit
	}
	return true, ""
}

func (h *Hub) rejectInput(current sim.Frame, sample sim.InputSample, reason string) {
	h.telemetry.RecordInputReject()
	netlog.IntakeReject(context.Background(), h.publisher, uint64(current),
		logging.EntityRef{ID: sample.PeerID, Kind: logging.EntityKindPeer},
		netlog.IntakeRejectPayload{Reason: reason, Frame: uint64(sample.Frame)}, nil)
}

// UpdateHeartbeat refreshes the peer's liveness and returns the measured RTT.
func (h *Hub) UpdateHeartbeat(peerID string, now time.Time, sentAt int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subscribers[peerID]
	if !ok {
		return 0, false
	}
	sub.lastHeartbeat = now

	var rtt time.Duration
	if sentAt > 0 {
		rtt = now.Sub(time.UnixMilli(sentAt))
		if rtt < 0 {
			rtt = 0
		}
	}
	sub.rtt = rtt
	return rtt, true
}

// RecordAck stores the newest broadcast frame a peer reported applying.
func (h *Hub) RecordAck(peerID string, frame uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[peerID]
	h.mu.Unlock()
	if ok {
		sub.StoreLastAck(frame)
	}
}

// HitQuery rewinds the target entity to the instant the client reports firing
// and returns the compensated state for hit validation.
func (h *Hub) HitQuery(target string, firedAt int64) proto.HitResult {
	at := time.UnixMilli(firedAt)
	state, ok := h.oracle.StateAt(target, at)
	result := proto.HitResult{
		Target: target,
		Frame:  uint64(h.oracle.FrameAt(at)),
		Found:  ok,
	}
	if ok {
		result.X = state.X
		result.Y = state.Y
		result.Heading = state.Heading
	}
	return result
}

// RunSimulation drives the fixed-timestep loop until stop closes or the
// engine latches a fatal desynchronization.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	interval := time.Second / time.Duration(h.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !h.step() {
				return
			}
		}
	}
}

// step advances exactly one frame and broadcasts the result. It returns
// false when the engine has failed and the loop should stop.
func (h *Hub) step() bool {
	started := time.Now()

	h.mu.Lock()
	result, err := h.engine.Tick()
	if err != nil {
		h.mu.Unlock()
		h.logger.Printf("simulation halted: %v", err)
		return false
	}
	if result.RolledBackTo > 0 {
		h.telemetry.RecordRollback(result.Resimulated)
	}
	for _, peerID := range result.RemovedPeers {
		if sub, ok := h.subscribers[peerID]; ok {
			delete(h.subscribers, peerID)
			sub.conn.Close()
		}
	}
	update := h.stateUpdateLocked()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	data, entities, err := MarshalState(update)
	if err != nil {
		h.logger.Printf("failed to marshal state for frame %d: %v", update.Frame, err)
	} else {
		h.broadcast(subs, data, entities)
	}

	elapsed := time.Since(started)
	h.telemetry.RecordTickDuration(elapsed)
	if budget := time.Second / time.Duration(h.cfg.TickRate); elapsed > budget {
		simlog.TickBudgetOverrun(context.Background(), h.publisher, update.Frame, simlog.TickBudgetOverrunPayload{
			DurationMillis: elapsed.Milliseconds(),
			BudgetMillis:   budget.Milliseconds(),
			Ratio:          float64(elapsed) / float64(budget),
		}, nil)
	}
	return true
}

func (h *Hub) broadcast(subs map[string]*subscriber, data []byte, entities int) {
	for peerID, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("dropping subscriber %s: %v", peerID, err)
			h.Disconnect(peerID)
		}
	}
	h.telemetry.RecordBroadcast(len(data)*len(subs), entities)
}

// MarshalState renders a state update and reports the entity count carried.
func MarshalState(update proto.StateUpdateV1) ([]byte, int, error) {
	data, err := proto.EncodeStateUpdateV1(update)
	if err != nil {
		return nil, 0, err
	}
	return data, len(update.Entities), nil
}

// stateUpdateLocked builds the broadcast payload for the latest frame.
// Callers must hold h.mu.
func (h *Hub) stateUpdateLocked() proto.StateUpdateV1 {
	update := proto.StateUpdateV1{
		Type:       proto.TypeState,
		ServerTime: time.Now().UnixMilli(),
		Confirmed:  make(map[string]uint64),
	}
	if latest, ok := h.engine.Store().LatestFrame(); ok {
		update.Frame = uint64(latest)
	}
	update.Entities = h.entitiesLocked()

	for _, peerID := range h.engine.Peers().Known() {
		buffer, ok := h.engine.Peers().Buffer(peerID)
		if !ok {
			continue
		}
		if frame, ok := buffer.LastConfirmedFrame(); ok {
			update.Confirmed[peerID] = uint64(frame)
		}
	}
	return update
}

// entitiesLocked snapshots the latest frame's entities in a stable order.
// Callers must hold h.mu.
func (h *Hub) entitiesLocked() []proto.EntityWire {
	latest, ok := h.engine.Store().LatestFrame()
	if !ok {
		return nil
	}
	snapshot, ok := h.engine.Store().Peek(latest)
	if !ok {
		return nil
	}

	entities := make([]proto.EntityWire, 0, len(snapshot.State.Entities))
	for id, entity := range snapshot.State.Entities {
		entities = append(entities, proto.EntityWire{
			ID:      id,
			X:       entity.X,
			Y:       entity.Y,
			Heading: entity.Heading,
		})
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities
}

// PeerDiagnostics summarises one peer for the diagnostics endpoint.
type PeerDiagnostics struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ConfirmedFrame uint64 `json:"confirmedFrame"`
	LastAck        uint64 `json:"lastAck"`
	RTTMillis      int64  `json:"rttMillis"`
	Connected      bool   `json:"connected"`
}

// DiagnosticsSnapshot reports every known peer's sync health.
func (h *Hub) DiagnosticsSnapshot() []PeerDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := h.engine.Peers().Known()
	out := make([]PeerDiagnostics, 0, len(peers))
	for _, peerID := range peers {
		diag := PeerDiagnostics{ID: peerID}
		if status, ok := h.engine.Peers().Status(peerID); ok {
			diag.Status = status.String()
		}
		if buffer, ok := h.engine.Peers().Buffer(peerID); ok {
			if frame, ok := buffer.LastConfirmedFrame(); ok {
				diag.ConfirmedFrame = uint64(frame)
			}
		}
		if sub, ok := h.subscribers[peerID]; ok {
			diag.Connected = true
			diag.LastAck = sub.LastAck()
			diag.RTTMillis = sub.rtt.Milliseconds()
		}
		out = append(out, diag)
	}
	return out
}

// TelemetrySnapshot reports broadcast and rollback counters.
func (h *Hub) TelemetrySnapshot() telemetrySnapshot {
	return h.telemetry.Snapshot()
}

// HasPeer reports whether the peer is known to the simulation.
func (h *Hub) HasPeer(peerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.engine.Peers().Status(peerID)
	return ok
}
