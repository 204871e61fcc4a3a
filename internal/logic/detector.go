package logic

import "time"

// Detector tracks state and detects debounced transitions for a fixed
// number of buttons.
type Detector struct {
	debounceDuration time.Duration
	channels         []ChannelState
	baselined        bool
	startTime        time.Time
	counts           EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a transition detector for n buttons with the given
// debounce duration. The startTime is used for calculating uptime in
// heartbeat data.
func NewDetector(n int, debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		channels:         make([]ChannelState, n),
		startTime:        startTime,
		lastHeartbeat:    startTime,
		counts: EventCounts{
			Presses:  make([]int, n),
			Releases: make([]int, n),
		},
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// Events are only returned after baseline is established and on state transitions.
// Channels missing from the sample are read as released.
func (d *Detector) Process(input Input) []Event {
	transitions := make([]*EventType, len(d.channels))
	for i := range d.channels {
		pressed := i < len(input.Pressed) && input.Pressed[i]
		transitions[i] = d.processChannel(&d.channels[i], boolToState(pressed), input.Time)
	}

	// Check if we've established baseline
	if !d.baselined {
		for _, ch := range d.channels {
			if !ch.Baselined {
				return nil // No events until baseline established
			}
		}
		d.baselined = true
		return nil
	}

	// Events are ordered by channel when several change in one sample.
	var events []Event
	for i, tr := range transitions {
		if tr == nil {
			continue
		}
		events = append(events, Event{
			Timestamp: input.Time,
			Channel:   i,
			Type:      *tr,
			State:     d.channels[i].Stable,
		})
		if *tr == EventPress {
			d.counts.Presses[i]++
		} else {
			d.counts.Releases[i]++
		}
	}

	return events
}

// processChannel handles debounce logic for a single channel.
// Returns the event type if a transition occurred, nil otherwise.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) *EventType {
	// First time seeing this channel
	if !ch.Baselined {
		if ch.Pending == "" {
			// Start observing
			ch.Pending = newState
			ch.PendingSince = now
			return nil
		}

		if ch.Pending != newState {
			// State changed during baseline, restart
			ch.Pending = newState
			ch.PendingSince = now
			return nil
		}

		// Check if debounce period has passed
		if now.Sub(ch.PendingSince) >= d.debounceDuration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return nil
	}

	// Already baselined - detect transitions
	if newState == ch.Stable {
		// No change from stable state, clear any pending
		ch.Pending = ""
		return nil
	}

	// State differs from stable
	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		return nil
	}

	// Same pending state, check debounce
	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Pending = ""
		return eventTypeFor(newState)
	}

	return nil
}

func boolToState(b bool) State {
	if b {
		return StatePressed
	}
	return StateReleased
}

func eventTypeFor(to State) *EventType {
	event := EventRelease
	if to == StatePressed {
		event = EventPress
	}
	return &event
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the current stable state of every channel.
func (d *Detector) CurrentState() []State {
	out := make([]State, len(d.channels))
	for i, ch := range d.channels {
		out[i] = ch.Stable
	}
	return out
}

// EventCountsSnapshot returns a copy of the counts.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return EventCounts{
		Presses:  append([]int(nil), d.counts.Presses...),
		Releases: append([]int(nil), d.counts.Releases...),
	}
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.EventCountsSnapshot(),
	}
}
