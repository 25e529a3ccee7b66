package reconciliation

import (
	"context"

	"rollsync/server/logging"
)

const (
	// EventDivergence is emitted when authoritative state disagrees with the
	// local prediction beyond tolerance and a correction is applied.
	EventDivergence logging.EventType = "reconciliation.divergence"
	// EventContractViolation is emitted when divergence persists for a frame
	// that was already corrected, which points at a non-deterministic
	// state-transition function rather than network jitter.
	EventContractViolation logging.EventType = "reconciliation.contract_violation"
)

// DivergencePayload captures a corrective pass.
type DivergencePayload struct {
	Frame       uint64  `json:"frame"`
	Distance    float64 `json:"distance"`
	Tolerance   float64 `json:"tolerance"`
	Resimulated int     `json:"resimulated"`
}

// Divergence publishes an info event for an applied correction.
func Divergence(ctx context.Context, pub logging.Publisher, tick uint64, payload DivergencePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDivergence,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ContractViolationPayload captures the frame that refused to converge.
type ContractViolationPayload struct {
	Frame     uint64  `json:"frame"`
	Distance  float64 `json:"distance"`
	Tolerance float64 `json:"tolerance"`
}

// ContractViolation publishes an error event; repeated correction without
// bound indicates a bug in the supplied simulation function, so the
// controller reports instead of correcting again.
func ContractViolation(ctx context.Context, pub logging.Publisher, tick uint64, payload ContractViolationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventContractViolation,
		Tick:     tick,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
