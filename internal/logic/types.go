// Package logic contains pure logic for the hardware toggle buttons:
// debouncing raw samples into press and release events, and mapping buttons
// to circles. This package has NO external dependencies (no GPIO, MQTT, OS,
// or time.Sleep). Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a button.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// EventType represents a state transition event.
type EventType string

const (
	EventPress   EventType = "PRESS"
	EventRelease EventType = "RELEASE"
)

// Event represents a debounced transition of one button.
type Event struct {
	Timestamp time.Time
	Channel   int // index into the configured buttons
	Type      EventType
	State     State
}

// ChannelState tracks debounce state for a single channel.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents a single sample of all buttons.
type Input struct {
	Pressed []bool // true = pressed (already inverted from raw GPIO)
	Time    time.Time
}

// EventCounts tracks presses and releases per channel since startup.
type EventCounts struct {
	Presses  []int
	Releases []int
}

// Total returns the number of presses over all channels.
func (c EventCounts) Total() int {
	n := 0
	for _, p := range c.Presses {
		n += p
	}
	return n
}

// HeartbeatData contains information for a heartbeat log line.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
