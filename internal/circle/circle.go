// Package circle builds the per-device view models ("circles") of the
// dashboard by merging the static inventory with the dynamic control
// configuration, and edits one device's configuration.
package circle

import (
	"fmt"
	"strings"
	"time"
)

// Icons shown per device category.
const (
	IconDefault = "lightbulb"
	IconPV      = "bolt"
	IconDivers  = "plug"
)

// PowerUnknown is the displayed power before any telemetry arrived.
const PowerUnknown = "-"

// Circle is the merged, derived view of one device. It is rebuilt on every
// load and never persisted directly.
type Circle struct {
	// Fields is the shallow merge of the dynamic record over the static one.
	Fields Record `json:"fields"`

	MAC        string `json:"mac"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Category   string `json:"category"`
	Production bool   `json:"production"`
	AlwaysOn   bool   `json:"alwayson"`

	// Display state. Telemetry owns these after the initial merge.
	SwitchState   string     `json:"switch_state"`
	ScheduleState string     `json:"schedule_state"`
	Schedule      string     `json:"schedule"`
	RelayOn       string     `json:"relayon"`
	Power         string     `json:"power"`
	Online        *bool      `json:"online,omitempty"`
	LastSeen      *time.Time `json:"lastseen,omitempty"`

	Icon    string `json:"icon"`
	ToolTip string `json:"toolTip"`
}

// Clone returns a deep copy.
func (c Circle) Clone() Circle {
	c.Fields = c.Fields.Clone()
	if c.Online != nil {
		online := *c.Online
		c.Online = &online
	}
	if c.LastSeen != nil {
		seen := *c.LastSeen
		c.LastSeen = &seen
	}
	return c
}

// IconFor maps a device category to its icon.
func IconFor(category string) string {
	switch category {
	case "PV":
		return IconPV
	case "divers":
		return IconDivers
	}
	return IconDefault
}

// ToolTip renders the HTML tooltip of a merged record.
func ToolTip(fields Record) string {
	interval := fields.String(KeyLogInterval)
	var b strings.Builder
	fmt.Fprintf(&b, "interval: %s min.<br>", interval)
	fmt.Fprintf(&b, "monitor (10s): %s<br>", fields.String(KeyMonitor))
	fmt.Fprintf(&b, "save log (%sm): %s<br>", interval, fields.String(KeySaveLog))
	fmt.Fprintf(&b, "mac: %s", fields.MAC())
	return b.String()
}

// newCircle derives a view model from a merged record.
func newCircle(fields Record) Circle {
	c := Circle{Fields: fields, Power: PowerUnknown}
	c.refresh()
	return c
}

// refresh re-derives identity and switch display state from Fields.
func (c *Circle) refresh() {
	f := c.Fields
	c.MAC = f.MAC()
	c.Name = f.String(KeyName)
	c.Location = f.String(KeyLocation)
	c.Category = f.String(KeyCategory)
	c.Production = f.Flag(KeyProduction)
	c.AlwaysOn = f.Flag(KeyAlwaysOn)
	c.SwitchState = f.String(KeySwitchState)
	c.ScheduleState = f.String(KeyScheduleState)
	c.Schedule = f.String(KeySchedule)
	if c.AlwaysOn {
		c.SwitchState = "on"
		c.ScheduleState = "off"
	}
	c.RelayOn = c.SwitchState
	c.Icon = IconFor(c.Category)
	c.ToolTip = ToolTip(f)
}

// Patch overlays dynamic fields onto the circle and re-derives the
// configuration-owned state. Power and presence are left alone.
func (c *Circle) Patch(dynamic Record) {
	if c.Fields == nil {
		c.Fields = Record{}
	}
	for k, v := range dynamic {
		c.Fields[k] = cloneValue(v)
	}
	c.refresh()
}

// Merge builds one circle per static record, in static order. The matching
// dynamic record (if any) is overlaid on a copy of the static record. As a
// side effect, dynamic records missing location or category get them
// back-filled from the static record.
//
// Static records without a MAC are skipped. Dynamic records without a
// static counterpart are not surfaced; their MACs are returned as orphans.
func Merge(static, dynamic []Record) (circles []Circle, orphans []string) {
	circles = make([]Circle, 0, len(static))
	for _, stat := range static {
		if strings.TrimSpace(stat.MAC()) == "" {
			continue
		}
		fields := stat.Clone()
		if fields == nil {
			fields = Record{}
		}
		dyn := ByMAC(dynamic, stat.MAC())
		if dyn != nil {
			for k, v := range dyn {
				fields[k] = cloneValue(v)
			}
			if !dyn.Has(KeyLocation) && stat.Has(KeyLocation) {
				dyn[KeyLocation] = stat[KeyLocation]
			}
			if !dyn.Has(KeyCategory) && stat.Has(KeyCategory) {
				dyn[KeyCategory] = stat[KeyCategory]
			}
		}
		circles = append(circles, newCircle(fields))
	}
	for _, dyn := range dynamic {
		if IndexByMAC(static, dyn.MAC()) < 0 {
			orphans = append(orphans, dyn.MAC())
		}
	}
	return circles, orphans
}
