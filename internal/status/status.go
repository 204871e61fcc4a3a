// Package status provides a thread-safe state tracker for the pw-dashboard
// daemon. It is written by the loader, telemetry and the device editor and
// read by HTTP handlers.
package status

import (
	"strings"
	"sync"
	"time"

	"github.com/sweeney/pw-dashboard/internal/alert"
	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/telemetry"
)

// Config contains daemon configuration for display.
type Config struct {
	BackendURL  string
	HTTPAddr    string
	Telemetry   string // socket or mqtt
	Commands    string // socket, http or mqtt
	Broker      string
	Orientation string
}

// Counts tallies telemetry since start.
type Counts struct {
	Applied int
	Unknown int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Circles         []circle.Circle
	Alert           alert.Alert
	Loaded          bool
	LoadedAt        time.Time
	SocketConnected bool
	MQTTConnected   bool
	Counts          Counts
	StartTime       time.Time
	Now             time.Time
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	lastMsg map[string]telemetry.Message // merged telemetry per circle, keyed by circle MAC
	now     func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		lastMsg: make(map[string]telemetry.Message),
		now:     time.Now,
	}
}

// ReplaceCircles installs a freshly merged circle list. Telemetry already
// received for a circle is re-applied so a reload does not blank live values.
func (t *Tracker) ReplaceCircles(circles []circle.Circle) {
	next := make([]circle.Circle, len(circles))
	for i, c := range circles {
		next[i] = c.Clone()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range next {
		if m, ok := t.lastMsg[next[i].MAC]; ok {
			telemetry.Apply(&next[i], m)
		}
	}
	t.snap.Circles = next
	t.snap.Loaded = true
	t.snap.LoadedAt = t.now()
}

// SetAlert replaces the current alert. Tracker is an alert.Sink.
func (t *Tracker) SetAlert(a alert.Alert) {
	t.mu.Lock()
	t.snap.Alert = a
	t.mu.Unlock()
}

// ApplyTelemetry updates the circle m refers to and returns false when no
// circle matches, leaving every circle unchanged.
func (t *Tracker) ApplyTelemetry(m telemetry.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(m.MAC)
	if i < 0 {
		t.snap.Counts.Unknown++
		return false
	}
	c := &t.snap.Circles[i]
	telemetry.Apply(c, m)
	t.lastMsg[c.MAC] = t.lastMsg[c.MAC].Overlay(m)
	t.snap.Counts.Applied++
	return true
}

// PatchCircle overlays confirmed dynamic fields onto a circle.
func (t *Tracker) PatchCircle(mac string, dynamic circle.Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(mac)
	if i < 0 {
		return false
	}
	c := &t.snap.Circles[i]
	c.Patch(dynamic)
	// Telemetry owns relay and schedule display state.
	if m, ok := t.lastMsg[c.MAC]; ok {
		telemetry.Apply(c, m)
	}
	return true
}

// Circle returns a copy of the circle for mac.
func (t *Tracker) Circle(mac string) (circle.Circle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexLocked(mac)
	if i < 0 {
		return circle.Circle{}, false
	}
	return t.snap.Circles[i].Clone(), true
}

// StatusMessage returns the full status of a circle: the status rebuilt from
// its configuration overlaid with all telemetry received for it.
func (t *Tracker) StatusMessage(mac string) (telemetry.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexLocked(mac)
	if i < 0 {
		return telemetry.Message{}, false
	}
	c := t.snap.Circles[i]
	return telemetry.StatusMessage(c).Overlay(t.lastMsg[c.MAC]), true
}

// SetSocketConnected sets the telemetry socket connection status.
func (t *Tracker) SetSocketConnected(connected bool) {
	t.mu.Lock()
	t.snap.SocketConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Circles = make([]circle.Circle, len(t.snap.Circles))
	for i, c := range t.snap.Circles {
		s.Circles[i] = c.Clone()
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}

func (t *Tracker) indexLocked(mac string) int {
	if strings.TrimSpace(mac) == "" {
		return -1
	}
	for i, c := range t.snap.Circles {
		if circle.SameMAC(c.MAC, mac) {
			return i
		}
	}
	return -1
}
