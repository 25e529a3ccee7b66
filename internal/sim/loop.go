package sim

import (
	"time"

	"rollsync/server/logging"
)

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
}

// LoopTickContext carries per-tick timing data into the hooks.
type LoopTickContext struct {
	Frame Frame
	Now   time.Time
	Delta float64
}

// LoopStepResult reports the outcome and timing of one loop iteration.
type LoopStepResult struct {
	TickResult
	Now          time.Time
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
}

// LoopHooks lets the hosting server observe the loop without the loop
// depending on it.
type LoopHooks struct {
	BeforeStep func(LoopTickContext)
	AfterStep  func(LoopStepResult)
	OnFailure  func(error)
}

// Loop drives the simulator at a fixed tick rate on a single goroutine. The
// optional recorder contributes the local participant's input each tick;
// an authority with no local controls runs without one.
type Loop struct {
	sim      *Simulator
	recorder *Recorder
	cfg      LoopConfig
	hooks    LoopHooks
}

// NewLoop wraps the simulator with a fixed-timestep runner.
func NewLoop(sim *Simulator, recorder *Recorder, cfg LoopConfig, hooks LoopHooks) *Loop {
	if sim == nil {
		return nil
	}
	return &Loop{sim: sim, recorder: recorder, cfg: cfg, hooks: hooks}
}

// Step executes exactly one tick: record local input, then advance.
func (l *Loop) Step() (TickResult, error) {
	if l == nil {
		return TickResult{}, ErrNotStarted
	}
	if l.recorder != nil {
		sample := l.recorder.Record(l.sim.CurrentFrame())
		if err := l.sim.SubmitLocal(sample); err != nil {
			return TickResult{}, err
		}
	}
	return l.sim.Tick()
}

// Run drives the loop until the stop channel closes or a fatal
// desynchronization latches. A failure stops the loop; continuing to
// simulate past a desync would only corrupt more state.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	clock := l.sim.deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	last := clock.Now()
	budget := time.Second / time.Duration(tickRate)
	maxDt := budget.Seconds()
	if l.cfg.CatchupMaxTicks > 1 {
		maxDt = budget.Seconds() * float64(l.cfg.CatchupMaxTicks)
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budget.Seconds()
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			ctx := LoopTickContext{Frame: l.sim.CurrentFrame() + 1, Now: now, Delta: dt}
			if l.hooks.BeforeStep != nil {
				l.hooks.BeforeStep(ctx)
			}

			start := clock.Now()
			tickResult, err := l.Step()
			if err != nil {
				if l.hooks.OnFailure != nil {
					l.hooks.OnFailure(err)
				}
				return
			}
			result := LoopStepResult{
				TickResult:   tickResult,
				Now:          now,
				Duration:     clock.Now().Sub(start),
				Budget:       budget,
				ClampedDelta: clamped,
			}
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}
