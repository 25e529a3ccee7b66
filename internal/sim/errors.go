package sim

import (
	"errors"
	"fmt"
)

// ErrUnknownPeer reports input addressed to a peer the registry has never
// seen or has already removed.
var ErrUnknownPeer = errors.New("sim: unknown peer")

// ErrNotStarted reports a tick issued before the genesis state was seeded.
var ErrNotStarted = errors.New("sim: simulator not started")

// DesyncError is a fatal desynchronization: a rollback target fell behind
// the snapshot retention window and can no longer be honored. Recovery
// requires an out-of-band full-state resync; the simulator refuses further
// ticks once this is raised.
type DesyncError struct {
	Target         Frame
	OldestRetained Frame
	Reason         string
}

// Error implements the error interface.
func (e *DesyncError) Error() string {
	return fmt.Sprintf("sim: fatal desynchronization: rollback target %d behind retention window (oldest retained %d): %s",
		e.Target, e.OldestRetained, e.Reason)
}

// IsDesync reports whether the error chain contains a fatal
// desynchronization.
func IsDesync(err error) bool {
	var desync *DesyncError
	return errors.As(err, &desync)
}
