package simulation

import (
	"context"

	"rollsync/server/logging"
)

const (
	// EventRollback is emitted when a late confirmation forces the engine to
	// restore an older snapshot and resimulate forward.
	EventRollback logging.EventType = "simulation.rollback"
	// EventFatalDesync is emitted when a rollback target has fallen behind
	// the snapshot retention window and cannot be honored.
	EventFatalDesync logging.EventType = "simulation.fatal_desync"
	// EventTickBudgetOverrun is emitted when a tick exceeds its time budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
)

// RollbackPayload captures the depth of a rollback pass.
type RollbackPayload struct {
	TargetFrame uint64 `json:"targetFrame"`
	Resimulated int    `json:"resimulated"`
}

// Rollback publishes an info event for a completed rollback-and-resimulate
// pass.
func Rollback(ctx context.Context, pub logging.Publisher, tick uint64, payload RollbackPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventRollback,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FatalDesyncPayload captures why the local session can no longer converge.
type FatalDesyncPayload struct {
	TargetFrame    uint64 `json:"targetFrame"`
	OldestRetained uint64 `json:"oldestRetained"`
	Reason         string `json:"reason"`
}

// FatalDesync publishes an error event when a rollback target is
// unrecoverable. The session requires an out-of-band full-state resync.
func FatalDesync(ctx context.Context, pub logging.Publisher, tick uint64, payload FatalDesyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFatalDesync,
		Tick:     tick,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// TickBudgetOverrunPayload captures timing details for a budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// TickBudgetOverrun publishes a warning when a tick exceeds its budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
