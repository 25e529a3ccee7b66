package server

import (
	"hash/fnv"
	"math"
	"sort"

	"rollsync/server/internal/sim"
)

const axisScale = 1.0 / 32767.0

// Button bits recognised by the built-in stepper.
const (
	ButtonWalk uint32 = 1 << iota
)

// DefaultStepper returns the built-in movement stepper. It is a pure function
// of the previous state and the frame's inputs: participants spawn at a
// position derived from their id the first frame they appear, integrate their
// movement axes, and vanish the frame their id stops appearing. The same
// membership and inputs therefore always reproduce the same state, which is
// what makes replaying a window of frames after a rollback safe.
func DefaultStepper(tickRate int) sim.StepperFunc {
	dt := 1.0 / float64(tickRate)
	return func(prev sim.WorldState, inputs map[string]sim.ActionVector) sim.WorldState {
		next := sim.WorldState{
			Blob:     append([]byte(nil), prev.Blob...),
			Entities: make(map[string]sim.EntityState, len(inputs)),
		}

		ids := make([]string, 0, len(inputs))
		for id := range inputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			entity, ok := prev.Entities[id]
			if !ok {
				entity = spawnEntity(id)
			}
			stepEntity(&entity, inputs[id], dt)
			next.Entities[id] = entity
		}
		return next
	}
}

func stepEntity(entity *sim.EntityState, in sim.ActionVector, dt float64) {
	dx := float64(in.MoveX) * axisScale
	dy := float64(in.MoveY) * axisScale
	length := math.Hypot(dx, dy)
	if length > 1 {
		dx /= length
		dy /= length
	}

	speed := moveSpeed
	if in.Buttons&ButtonWalk != 0 {
		speed = moveSpeed / 2
	}

	entity.X = clamp(entity.X+dx*speed*dt, actorHalf, worldWidth-actorHalf)
	entity.Y = clamp(entity.Y+dy*speed*dt, actorHalf, worldHeight-actorHalf)
	if dx != 0 || dy != 0 {
		entity.Heading = math.Atan2(dy, dx)
	}
}

// spawnEntity places a new participant deterministically from its id so every
// replica that learns about the join computes the same spawn.
func spawnEntity(id string) sim.EntityState {
	h := fnv.New32a()
	h.Write([]byte(id))
	v := h.Sum32()

	span := worldWidth - 2*actorHalf
	x := actorHalf + float64(v%1024)/1023.0*span
	y := actorHalf + float64((v>>10)%1024)/1023.0*(worldHeight-2*actorHalf)
	return sim.EntityState{X: x, Y: y}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
