package telemetry

import (
	"sync"
	"time"

	"github.com/homelead/askdb/pkg/redact"
)

// Collector is the bounded in-memory event buffer. Recording never fails and
// never blocks on I/O; a full buffer evicts its oldest event. A disabled
// collector accepts every call as a no-op.
type Collector struct {
	mu      sync.Mutex
	events  []Event
	next    uint64
	cap     int
	enabled bool
}

// NewCollector creates a collector holding at most bufferSize events.
func NewCollector(enabled bool, bufferSize int) *Collector {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Collector{
		events:  make([]Event, 0, bufferSize),
		cap:     bufferSize,
		enabled: enabled,
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// Record buffers one tool invocation. Arguments are redacted before they
// enter the buffer so sensitive values never sit in memory or on the wire.
func (c *Collector) Record(command string, duration time.Duration, success bool, args map[string]any) {
	if !c.enabled {
		return
	}

	var redacted map[string]any
	if args != nil {
		redacted, _ = redact.Value(args).(map[string]any)
	}

	c.append(Event{
		Command:    command,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		Timestamp:  time.Now().UTC(),
		Arguments:  redacted,
	})
}

// RecordServerStart buffers the process startup marker.
func (c *Collector) RecordServerStart(metadata map[string]any) {
	if !c.enabled {
		return
	}
	c.append(Event{
		Command:   CommandServerStart,
		Success:   true,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
}

// RecordServerStop buffers the process shutdown marker.
func (c *Collector) RecordServerStop() {
	if !c.enabled {
		return
	}
	c.append(Event{
		Command:   CommandServerStop,
		Success:   true,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Collector) append(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev.Index = c.next
	c.next++

	if len(c.events) >= c.cap {
		// Drop the oldest, never the newest.
		copy(c.events, c.events[1:])
		c.events = c.events[:len(c.events)-1]
	}
	c.events = append(c.events, ev)
}

// Drain snapshots and clears the buffer. Events come out in insertion order.
func (c *Collector) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		return nil
	}
	out := make([]Event, len(c.events))
	copy(out, c.events)
	c.events = c.events[:0]
	return out
}

// Len returns the number of buffered events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
