package server

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	bytesSent             atomic.Uint64
	entitiesSent          atomic.Uint64
	tickDurationMillis    atomic.Int64
	lastBroadcastBytes    atomic.Uint64
	lastBroadcastEntities atomic.Uint64
	debug                 bool
	rollbacks             atomic.Uint64
	resimulatedFrames     atomic.Uint64
	inputRejects          atomic.Uint64
	deepestRollback       atomic.Uint64
}

type telemetrySnapshot struct {
	BytesSent         uint64 `json:"bytesSent"`
	EntitiesSent      uint64 `json:"entitiesSent"`
	TickDuration      int64  `json:"tickDurationMillis"`
	Rollbacks         uint64 `json:"rollbacks"`
	ResimulatedFrames uint64 `json:"resimulatedFrames"`
	InputRejects      uint64 `json:"inputRejects"`
	DeepestRollback   uint64 `json:"deepestRollback"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordBroadcast(bytes, entities int) {
	if bytes < 0 {
		bytes = 0
	}
	if entities < 0 {
		entities = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.entitiesSent.Add(uint64(entities))
	t.lastBroadcastBytes.Store(uint64(bytes))
	t.lastBroadcastEntities.Store(uint64(entities))
}

func (t *telemetryCounters) RecordTickDuration(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.tickDurationMillis.Store(millis)
	if t.debug {
		fmt.Printf(
			"[telemetry] tick=%dms bytes=%d totalBytes=%d entities=%d totalEntities=%d\n",
			millis,
			t.lastBroadcastBytes.Load(),
			t.bytesSent.Load(),
			t.lastBroadcastEntities.Load(),
			t.entitiesSent.Load(),
		)
	}
}

func (t *telemetryCounters) RecordRollback(depth int) {
	t.rollbacks.Add(1)
	if depth < 0 {
		depth = 0
	}
	t.resimulatedFrames.Add(uint64(depth))
	for {
		current := t.deepestRollback.Load()
		if uint64(depth) <= current {
			return
		}
		if t.deepestRollback.CompareAndSwap(current, uint64(depth)) {
			return
		}
	}
}

func (t *telemetryCounters) RecordInputReject() {
	t.inputRejects.Add(1)
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		BytesSent:         t.bytesSent.Load(),
		EntitiesSent:      t.entitiesSent.Load(),
		TickDuration:      t.tickDurationMillis.Load(),
		Rollbacks:         t.rollbacks.Load(),
		ResimulatedFrames: t.resimulatedFrames.Load(),
		InputRejects:      t.inputRejects.Load(),
		DeepestRollback:   t.deepestRollback.Load(),
	}
}
