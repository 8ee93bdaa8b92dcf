// Package telemetry buffers usage events in memory and flushes them to the
// telemetry endpoint in the background.
package telemetry

import "time"

// Event is one recorded tool invocation or lifecycle marker.
// Index is assigned at record time and increases monotonically for the life
// of the process; the flush order follows it.
type Event struct {
	Index      uint64         `json:"index" bson:"index"`
	Command    string         `json:"command" bson:"command"`
	DurationMs int64          `json:"durationMs" bson:"durationMs"`
	Success    bool           `json:"success" bson:"success"`
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
	Arguments  map[string]any `json:"arguments,omitempty" bson:"arguments,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Lifecycle commands recorded alongside tool invocations.
const (
	CommandServerStart = "server_start"
	CommandServerStop  = "server_stop"
)
