// Package reconcile corrects a non-authoritative participant's predicted
// state against authoritative snapshots received from a server or designated
// authority.
package reconcile

import (
	"context"
	"errors"
	"math"

	"rollsync/server/internal/sim"
	reconcilelog "rollsync/server/logging/reconciliation"
)

const (
	correctionMetricKey = "reconcile_correction_total"
	violationMetricKey  = "reconcile_contract_violation_total"
)

// ErrFrameNotRetained reports authoritative state for a frame outside the
// local snapshot window; there is nothing left to compare it against.
var ErrFrameNotRetained = errors.New("reconcile: frame not retained locally")

// Comparator measures how far a predicted state drifted from the
// authoritative one. The surrounding game may supply its own; the default
// compares per-entity positions.
type Comparator interface {
	Distance(predicted, authoritative sim.WorldState) float64
}

// ComparatorFunc adapts a function into the Comparator interface.
type ComparatorFunc func(predicted, authoritative sim.WorldState) float64

// Distance implements Comparator for ComparatorFunc.
func (f ComparatorFunc) Distance(predicted, authoritative sim.WorldState) float64 {
	if f == nil {
		return 0
	}
	return f(predicted, authoritative)
}

// MaxEntityDelta is the default comparator: the largest Euclidean positional
// delta across the union of entities. An entity present on only one side
// counts as infinite distance.
func MaxEntityDelta(predicted, authoritative sim.WorldState) float64 {
	maxDelta := 0.0
	for id, auth := range authoritative.Entities {
		local, ok := predicted.Entities[id]
		if !ok {
			return math.Inf(1)
		}
		dx := local.X - auth.X
		dy := local.Y - auth.Y
		if d := math.Hypot(dx, dy); d > maxDelta {
			maxDelta = d
		}
	}
	for id := range predicted.Entities {
		if _, ok := authoritative.Entities[id]; !ok {
			return math.Inf(1)
		}
	}
	return maxDelta
}

// Divergence is the transient result of one reconciliation pass; it is not
// persisted anywhere.
type Divergence struct {
	Frame       sim.Frame
	Distance    float64
	Corrected   bool
	Resimulated int
	Violation   bool
}

// Config tunes the controller.
type Config struct {
	// Tolerance bounds how far prediction may drift before a correction is
	// applied. Normal jitter stays below it.
	Tolerance float64
}

// Controller compares locally predicted snapshots against authoritative
// state and triggers rollback-resimulation when the drift exceeds
// tolerance. It runs on the simulation goroutine.
type Controller struct {
	engine  *sim.Simulator
	cmp     Comparator
	cfg     Config
	deps    sim.Deps
	metrics metricAdder

	lastCorrected sim.Frame
	hasCorrected  bool
	violated      bool
}

type metricAdder interface {
	Add(string, uint64)
}

// NewController wires the controller to the simulator it corrects.
func NewController(engine *sim.Simulator, cmp Comparator, cfg Config, deps sim.Deps) *Controller {
	if engine == nil {
		return nil
	}
	if cmp == nil {
		cmp = ComparatorFunc(MaxEntityDelta)
	}
	var metrics metricAdder
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}
	return &Controller{engine: engine, cmp: cmp, cfg: cfg, deps: deps, metrics: metrics}
}

// Violated reports whether a determinism contract violation was detected.
func (c *Controller) Violated() bool {
	if c == nil {
		return false
	}
	return c.violated
}

// Observe processes one authoritative (frame, state) pair. Within tolerance
// it is a no-op; beyond it the local snapshot is overwritten and the
// simulator resimulates forward to the current frame. A frame that diverges
// again after it was already corrected is reported as a determinism
// contract violation instead of being corrected a second time.
func (c *Controller) Observe(frame sim.Frame, authoritative sim.WorldState) (Divergence, error) {
	if c == nil {
		return Divergence{}, errors.New("reconcile: nil controller")
	}
	store := c.engine.Store()
	predicted, ok := store.Get(frame)
	if !ok {
		return Divergence{Frame: frame}, ErrFrameNotRetained
	}

	result := Divergence{Frame: frame, Distance: c.cmp.Distance(predicted, authoritative)}
	if result.Distance <= c.cfg.Tolerance {
		if c.hasCorrected && frame >= c.lastCorrected {
			// Converged after a correction; the earlier drift was jitter.
			c.hasCorrected = false
		}
		return result, nil
	}

	if c.hasCorrected && frame <= c.lastCorrected {
		result.Violation = true
		c.violated = true
		if c.metrics != nil {
			c.metrics.Add(violationMetricKey, 1)
		}
		reconcilelog.ContractViolation(context.Background(), c.deps.Publisher, uint64(c.engine.CurrentFrame()),
			reconcilelog.ContractViolationPayload{
				Frame:     uint64(frame),
				Distance:  result.Distance,
				Tolerance: c.cfg.Tolerance,
			}, nil)
		if c.deps.Logger != nil {
			c.deps.Logger.Printf("[reconcile] frame %d diverged again after correction; state-transition function is not deterministic", frame)
		}
		return result, nil
	}

	store.Put(frame, authoritative)
	resimmed, err := c.engine.Resimulate(frame + 1)
	if err != nil {
		return result, err
	}
	result.Corrected = true
	result.Resimulated = resimmed
	c.lastCorrected = frame
	c.hasCorrected = true
	if c.metrics != nil {
		c.metrics.Add(correctionMetricKey, 1)
	}
	reconcilelog.Divergence(context.Background(), c.deps.Publisher, uint64(c.engine.CurrentFrame()),
		reconcilelog.DivergencePayload{
			Frame:       uint64(frame),
			Distance:    result.Distance,
			Tolerance:   c.cfg.Tolerance,
			Resimulated: resimmed,
		}, nil)
	return result, nil
}
