// Package telemetry consumes the live circle state published by
// Plugwise-2-py, either over the backend socket or the state topics, and
// applies it to the dashboard's circles.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sweeney/pw-dashboard/internal/circle"
)

// Results reported by the socket for connection changes.
const (
	ResultOpened = "Succeeded to open a connection"
	ResultFailed = "Failed to open a connection"
	ResultClosed = "Connection closed"
)

// Flag is a boolean that also accepts the textual forms used in the
// configuration files ("True", "yes", ...) and numbers.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(x)
	case float64:
		*f = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "t", "y", "yes", "on":
			*f = true
		default:
			*f = false
		}
	default:
		return fmt.Errorf("telemetry: cannot use %s as flag", data)
	}
	return nil
}

// Message is one circle status or power update. Absent fields are nil.
type Message struct {
	MAC        string   `json:"mac"`
	Type       *string  `json:"type,omitempty"`
	Name       *string  `json:"name,omitempty"`
	Location   *string  `json:"location,omitempty"`
	Online     *Flag    `json:"online,omitempty"`
	LastSeen   *float64 `json:"lastseen,omitempty"`
	ReadOnly   *Flag    `json:"readonly,omitempty"`
	ReversePol *Flag    `json:"reverse_pol,omitempty"`
	Switch     *string  `json:"switch,omitempty"`
	SwitchReq  *string  `json:"switchreq,omitempty"`
	Schedule   *string  `json:"schedule,omitempty"`
	SchedName  *string  `json:"schedname,omitempty"`
	Power      *float64 `json:"power,omitempty"`
	Power1s    *float64 `json:"power1s,omitempty"`
	Power8s    *float64 `json:"power8s,omitempty"`
	Power1h    *float64 `json:"power1h,omitempty"`
	PowerTS    *float64 `json:"powerts,omitempty"`
	Production *Flag    `json:"production,omitempty"`
	Interval   *float64 `json:"interval,omitempty"`
	Monitor    *Flag    `json:"monitor,omitempty"`
	SaveLog    *Flag    `json:"savelog,omitempty"`

	// Result is set on connection status messages of the socket.
	Result *string `json:"result,omitempty"`
}

// Decode parses one message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode telemetry: %w", err)
	}
	return m, nil
}

// IsStatus reports whether m is a socket connection status message.
func (m Message) IsStatus() bool {
	return m.Result != nil && m.MAC == ""
}

// PowerValue returns the instantaneous power, preferring power over power8s.
func (m Message) PowerValue() (float64, bool) {
	if m.Power != nil {
		return *m.Power, true
	}
	if m.Power8s != nil {
		return *m.Power8s, true
	}
	return 0, false
}

// Overlay returns m with every field present in o replacing its own.
func (m Message) Overlay(o Message) Message {
	if o.MAC != "" {
		m.MAC = o.MAC
	}
	overlay(&m.Type, o.Type)
	overlay(&m.Name, o.Name)
	overlay(&m.Location, o.Location)
	overlay(&m.Online, o.Online)
	overlay(&m.LastSeen, o.LastSeen)
	overlay(&m.ReadOnly, o.ReadOnly)
	overlay(&m.ReversePol, o.ReversePol)
	overlay(&m.Switch, o.Switch)
	overlay(&m.SwitchReq, o.SwitchReq)
	overlay(&m.Schedule, o.Schedule)
	overlay(&m.SchedName, o.SchedName)
	overlay(&m.Power, o.Power)
	overlay(&m.Power1s, o.Power1s)
	overlay(&m.Power8s, o.Power8s)
	overlay(&m.Power1h, o.Power1h)
	overlay(&m.PowerTS, o.PowerTS)
	overlay(&m.Production, o.Production)
	overlay(&m.Interval, o.Interval)
	overlay(&m.Monitor, o.Monitor)
	overlay(&m.SaveLog, o.SaveLog)
	overlay(&m.Result, o.Result)
	return m
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// FormatPower renders watts with one decimal, negated for producers. The
// float's exact binary value is rounded, so 1.45 (stored just below) gives
// 1.4.
func FormatPower(watts float64, production bool) string {
	d := decimal.NewFromFloatWithExponent(watts, -1)
	if production {
		d = d.Neg()
	}
	return d.StringFixed(1)
}

// Apply updates the telemetry-owned fields of c from m. It reports whether
// anything changed. The production flag comes from the circle's
// configuration.
func Apply(c *circle.Circle, m Message) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	if w, ok := m.PowerValue(); ok {
		set(&c.Power, FormatPower(w, c.Production))
	}
	if m.Switch != nil {
		set(&c.RelayOn, *m.Switch)
		set(&c.SwitchState, *m.Switch)
	}
	if m.Schedule != nil {
		set(&c.ScheduleState, *m.Schedule)
	}
	if m.SchedName != nil {
		set(&c.Schedule, *m.SchedName)
	}
	if m.Online != nil {
		online := bool(*m.Online)
		if c.Online == nil || *c.Online != online {
			c.Online = &online
			changed = true
		}
	}
	if m.LastSeen != nil {
		seen := unixTime(*m.LastSeen)
		if c.LastSeen == nil || !c.LastSeen.Equal(seen) {
			c.LastSeen = &seen
			changed = true
		}
	}
	return changed
}

func unixTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// FormatStatusLine renders the one-line circle summary used by home
// automation item labels.
func FormatStatusLine(m Message, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	fmt.Fprintf(&b, "switch: %s", strings.ToUpper(deref(m.Switch)))
	fmt.Fprintf(&b, ", sched{%s}:%s", deref(m.SchedName), strings.ToUpper(deref(m.Schedule)))
	fmt.Fprintf(&b, ", type: %s", deref(m.Type))
	fmt.Fprintf(&b, ", name: %s/%s", deref(m.Location), deref(m.Name))
	if flag(m.ReadOnly) {
		b.WriteString(", always ON")
	}
	fmt.Fprintf(&b, ", monitor: %s", yesNo(flag(m.Monitor)))
	fmt.Fprintf(&b, ", log: %s", yesNo(flag(m.SaveLog)))
	interval := ""
	if m.Interval != nil {
		interval = strconv.FormatFloat(*m.Interval, 'f', -1, 64)
	}
	fmt.Fprintf(&b, ", interval: %sm", interval)
	fmt.Fprintf(&b, ", prod: %s", yesNo(flag(m.Production)))
	if flag(m.Online) {
		b.WriteString(", ONLINE")
	} else {
		b.WriteString(", OFFLINE @ ")
		if m.LastSeen != nil {
			b.WriteString(unixTime(*m.LastSeen).In(loc).Format("2006-01-02 15:04:05"))
		}
	}
	return b.String()
}

// StatusMessage rebuilds a status message from a circle, for circles whose
// last full status was not retained.
func StatusMessage(c circle.Circle) Message {
	m := Message{
		MAC:       c.MAC,
		Name:      strPtr(c.Name),
		Location:  strPtr(c.Location),
		Switch:    strPtr(c.SwitchState),
		Schedule:  strPtr(c.ScheduleState),
		SchedName: strPtr(c.Schedule),
	}
	readonly := Flag(c.AlwaysOn)
	m.ReadOnly = &readonly
	prod := Flag(c.Production)
	m.Production = &prod
	monitor := Flag(c.Fields.Flag(circle.KeyMonitor))
	m.Monitor = &monitor
	savelog := Flag(c.Fields.Flag(circle.KeySaveLog))
	m.SaveLog = &savelog
	if v, err := strconv.ParseFloat(c.Fields.String(circle.KeyLogInterval), 64); err == nil {
		m.Interval = &v
	}
	if c.Online != nil {
		online := Flag(*c.Online)
		m.Online = &online
	}
	if c.LastSeen != nil {
		ts := float64(c.LastSeen.Unix())
		m.LastSeen = &ts
	}
	return m
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func flag(f *Flag) bool {
	return f != nil && bool(*f)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
