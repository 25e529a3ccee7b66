package logging

import "sync"

// Metrics is a concurrency-safe counter and gauge registry shared across the
// server. Keys are flat strings; callers define their own namespaces.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]uint64
	gauges   map[string]uint64
}

// NewMetrics constructs an empty registry.
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]uint64),
		gauges:   make(map[string]uint64),
	}
}

// Add increments a counter.
func (m *Metrics) Add(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.counters[key] += delta
	m.mu.Unlock()
}

// Store sets a gauge to the provided value.
func (m *Metrics) Store(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Counter reads a counter value.
func (m *Metrics) Counter(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key]
}

// Gauge reads a gauge value.
func (m *Metrics) Gauge(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[key]
}

// Snapshot returns a merged copy of all counters and gauges.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]uint64, len(m.counters)+len(m.gauges))
	for k, v := range m.counters {
		snapshot[k] = v
	}
	for k, v := range m.gauges {
		snapshot[k] = v
	}
	return snapshot
}
