package logging

import "time"

// Config tunes the event router and the sinks wired into it. The zero value
// is usable; NewRouter substitutes sane fallbacks for unset numeric fields.
type Config struct {
	// EnabledSinks names the sinks the process wires up. Names must match
	// the NamedSink entries handed to NewRouter.
	EnabledSinks []string
	// BufferSize bounds the router intake queue. Events past the bound are
	// dropped and counted rather than blocking the simulation tick.
	BufferSize int
	// MinimumSeverity filters events before they enter the queue.
	MinimumSeverity Severity
	// Fields holds process-wide key/value pairs stamped onto every event.
	Fields map[string]any

	JSON    JSONConfig
	Console ConsoleConfig

	// DropWarnInterval rate-limits the fallback warning printed when the
	// intake queue overflows.
	DropWarnInterval time.Duration
}

// JSONConfig controls the append-only JSON lines sink.
type JSONConfig struct {
	// FilePath is where events are appended. Empty disables the sink.
	FilePath string
	// FlushInterval is how often buffered lines are forced to disk. Zero or
	// negative flushes after every write.
	FlushInterval time.Duration
}

// ConsoleConfig controls the human-readable stdout sink.
type ConsoleConfig struct {
	UseColor bool
}

// DefaultConfig returns the production tuning: console output only, info
// severity, and a queue sized for a single hub's event rate.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       256,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 10 * time.Second,
		JSON: JSONConfig{
			FlushInterval: time.Second,
		},
	}
}

// HasSink reports whether the named sink is enabled.
func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

// CloneFields copies the process-wide fields so the router can hold them
// without sharing the caller's map.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
