package server

import (
	"sync"
	"testing"
	"time"
)

func TestTelemetryCountersAccumulate(t *testing.T) {
	counters := newTelemetryCounters()

	counters.RecordBroadcast(100, 3)
	counters.RecordBroadcast(50, 2)
	counters.RecordTickDuration(7 * time.Millisecond)
	counters.RecordRollback(4)
	counters.RecordRollback(2)
	counters.RecordInputReject()

	snapshot := counters.Snapshot()
	if snapshot.BytesSent != 150 {
		t.Fatalf("expected 150 bytes, got %d", snapshot.BytesSent)
	}
	if snapshot.EntitiesSent != 5 {
		t.Fatalf("expected 5 entities, got %d", snapshot.EntitiesSent)
	}
	if snapshot.TickDuration != 7 {
		t.Fatalf("expected 7ms tick duration, got %d", snapshot.TickDuration)
	}
	if snapshot.Rollbacks != 2 {
		t.Fatalf("expected 2 rollbacks, got %d", snapshot.Rollbacks)
	}
	if snapshot.ResimulatedFrames != 6 {
		t.Fatalf("expected 6 resimulated frames, got %d", snapshot.ResimulatedFrames)
	}
	if snapshot.DeepestRollback != 4 {
		t.Fatalf("expected deepest rollback 4, got %d", snapshot.DeepestRollback)
	}
	if snapshot.InputRejects != 1 {
		t.Fatalf("expected 1 reject, got %d", snapshot.InputRejects)
	}
}

func TestTelemetryCountersIgnoreNegativeInputs(t *testing.T) {
	counters := newTelemetryCounters()

	counters.RecordBroadcast(-10, -2)
	counters.RecordTickDuration(-5 * time.Millisecond)
	counters.RecordRollback(-3)

	snapshot := counters.Snapshot()
	if snapshot.BytesSent != 0 || snapshot.EntitiesSent != 0 || snapshot.TickDuration != 0 {
		t.Fatalf("expected negative values to clamp to zero, got %+v", snapshot)
	}
	if snapshot.Rollbacks != 1 || snapshot.ResimulatedFrames != 0 || snapshot.DeepestRollback != 0 {
		t.Fatalf("expected rollback count without depth, got %+v", snapshot)
	}
}

func TestTelemetryCountersConcurrentRollbacks(t *testing.T) {
	counters := newTelemetryCounters()

	var wg sync.WaitGroup
	for depth := 1; depth <= 8; depth++ {
		wg.Add(1)
		go func(depth int) {
			defer wg.Done()
			counters.RecordRollback(depth)
		}(depth)
	}
	wg.Wait()

	snapshot := counters.Snapshot()
	if snapshot.Rollbacks != 8 {
		t.Fatalf("expected 8 rollbacks, got %d", snapshot.Rollbacks)
	}
	if snapshot.DeepestRollback != 8 {
		t.Fatalf("expected deepest rollback 8, got %d", snapshot.DeepestRollback)
	}
	if snapshot.ResimulatedFrames != 36 {
		t.Fatalf("expected 36 resimulated frames, got %d", snapshot.ResimulatedFrames)
	}
}
