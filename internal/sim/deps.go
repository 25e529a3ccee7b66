package sim

import (
	"log"

	"rollsync/server/logging"
)

// telemetryMetrics is the minimal metrics surface the simulation plumbs into
// its buffers and stores.
type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// Deps carries shared infrastructure dependencies required by the rollback
// simulator.
type Deps struct {
	Logger    *log.Logger
	Metrics   *logging.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
}
