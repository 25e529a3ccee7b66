package sim

// EntityState is the per-entity portion of a snapshot. Position and heading
// are recorded explicitly so historical queries can interpolate between
// frames; everything else rides in the opaque versioned blob supplied by the
// surrounding game.
type EntityState struct {
	Version uint8   `json:"version"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
	Blob    []byte  `json:"blob,omitempty"`
}

// Clone returns a deep copy of the entity state.
func (e EntityState) Clone() EntityState {
	cloned := e
	if len(e.Blob) > 0 {
		cloned.Blob = append([]byte(nil), e.Blob...)
	}
	return cloned
}

// WorldState is one fully simulated frame of the world: an opaque payload
// owned by the game plus the per-peer entity states the sync core needs for
// reconciliation and lag compensation.
type WorldState struct {
	Blob     []byte                 `json:"blob,omitempty"`
	Entities map[string]EntityState `json:"entities,omitempty"`
}

// Clone returns a deep copy so resimulation never aliases a stored snapshot.
func (w WorldState) Clone() WorldState {
	cloned := WorldState{}
	if len(w.Blob) > 0 {
		cloned.Blob = append([]byte(nil), w.Blob...)
	}
	if len(w.Entities) > 0 {
		cloned.Entities = make(map[string]EntityState, len(w.Entities))
		for id, entity := range w.Entities {
			cloned.Entities[id] = entity.Clone()
		}
	}
	return cloned
}

// StateSnapshot pairs a fully simulated world state with its frame.
type StateSnapshot struct {
	Frame Frame      `json:"frame"`
	State WorldState `json:"state"`
}

// Stepper is the deterministic state-transition function supplied by the
// surrounding simulation. Identical inputs must produce bit-identical output
// on every peer, independent of wall-clock time and of iteration order over
// the input map; the rollback machinery depends on this contract and cannot
// enforce it.
type Stepper interface {
	Step(prev WorldState, inputs map[string]ActionVector) WorldState
}

// StepperFunc adapts a function into the Stepper interface.
type StepperFunc func(prev WorldState, inputs map[string]ActionVector) WorldState

// Step implements Stepper for StepperFunc.
func (f StepperFunc) Step(prev WorldState, inputs map[string]ActionVector) WorldState {
	if f == nil {
		return prev
	}
	return f(prev, inputs)
}
