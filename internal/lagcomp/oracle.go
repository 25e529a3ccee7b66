// Package lagcomp answers "where did this entity appear to be at time T"
// from historical snapshots, so an authority can validate latency-sensitive
// actions against what the acting peer actually saw. It never mutates the
// live simulation.
package lagcomp

import (
	"math"
	"time"

	"rollsync/server/internal/sim"
)

// Config maps wall-clock timestamps onto the frame axis.
type Config struct {
	// TickRate is the simulation frequency in frames per second.
	TickRate int
	// Epoch is the wall-clock instant of frame 0.
	Epoch time.Time
}

// Oracle is a read-only query service over the snapshot ring. Its reads are
// safe concurrently with the simulation loop; the store's per-slot atomic
// swap guarantees it never observes a torn snapshot.
type Oracle struct {
	store    *sim.SnapshotStore
	tickDur  time.Duration
	epoch    time.Time
	tickRate int
}

// NewOracle constructs an oracle over the provided store.
func NewOracle(store *sim.SnapshotStore, cfg Config) *Oracle {
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	return &Oracle{
		store:    store,
		tickDur:  time.Second / time.Duration(tickRate),
		epoch:    cfg.Epoch,
		tickRate: tickRate,
	}
}

// StateAt returns the entity's interpolated state at the given instant. For
// a timestamp strictly between two retained frames the position and heading
// are linearly interpolated; outside the retained window the nearest
// boundary snapshot is returned unmodified, never extrapolated. The second
// result is false when the entity is unknown at every reachable frame.
func (o *Oracle) StateAt(entityID string, at time.Time) (sim.EntityState, bool) {
	if o == nil || o.store == nil || entityID == "" {
		return sim.EntityState{}, false
	}
	latest, seeded := o.store.LatestFrame()
	if !seeded {
		return sim.EntityState{}, false
	}
	oldest := o.store.OldestRetainedFrame()

	exact := float64(at.Sub(o.epoch)) / float64(o.tickDur)
	if exact <= float64(oldest) {
		return o.entityAt(entityID, oldest, latest)
	}
	if exact >= float64(latest) {
		return o.entityAt(entityID, latest, latest)
	}

	lower := sim.Frame(math.Floor(exact))
	fraction := exact - math.Floor(exact)
	if fraction == 0 {
		return o.entityAt(entityID, lower, latest)
	}
	upper := lower + 1

	before, okBefore := o.entityAt(entityID, lower, latest)
	after, okAfter := o.entityAt(entityID, upper, latest)
	switch {
	case okBefore && okAfter:
		return lerpEntity(before, after, fraction), true
	case okBefore:
		return before, true
	case okAfter:
		return after, true
	default:
		return sim.EntityState{}, false
	}
}

// FrameAt reports the fractional frame the instant maps to, for callers that
// want to log or clamp on their own.
func (o *Oracle) FrameAt(at time.Time) float64 {
	if o == nil {
		return 0
	}
	return float64(at.Sub(o.epoch)) / float64(o.tickDur)
}

// entityAt reads the entity from the snapshot at frame, walking toward the
// newest frame when the slot was concurrently overwritten by wraparound.
func (o *Oracle) entityAt(entityID string, frame, latest sim.Frame) (sim.EntityState, bool) {
	for f := frame; f <= latest; f++ {
		snapshot, ok := o.store.Peek(f)
		if !ok {
			continue
		}
		entity, ok := snapshot.State.Entities[entityID]
		if !ok {
			return sim.EntityState{}, false
		}
		return entity.Clone(), true
	}
	return sim.EntityState{}, false
}

func lerpEntity(a, b sim.EntityState, t float64) sim.EntityState {
	result := a.Clone()
	result.X = a.X + (b.X-a.X)*t
	result.Y = a.Y + (b.Y-a.Y)*t
	result.Heading = lerpAngle(a.Heading, b.Heading, t)
	return result
}

// lerpAngle interpolates along the shortest arc between two headings in
// radians.
func lerpAngle(a, b, t float64) float64 {
	delta := math.Mod(b-a+3*math.Pi, 2*math.Pi) - math.Pi
	return a + delta*t
}
