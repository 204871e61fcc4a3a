package circle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one device entry of the static or dynamic configuration
// document. Values are kept as decoded JSON so unknown keys survive a
// read/modify/write cycle.
type Record map[string]any

// Known record keys.
const (
	KeyMAC           = "mac"
	KeyName          = "name"
	KeyLocation      = "location"
	KeyCategory      = "category"
	KeyProduction    = "production"
	KeyLogInterval   = "loginterval"
	KeyAlwaysOn      = "always_on"
	KeySwitchState   = "switch_state"
	KeyScheduleState = "schedule_state"
	KeySchedule      = "schedule"
	KeyMonitor       = "monitor"
	KeySaveLog       = "savelog"
)

// String returns the value at key rendered as text, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case json.Number:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Flag interprets the value at key as a boolean. JSON booleans are used as
// is; text values true/1/t/y/yes/on (any case) are true.
func (r Record) Flag(key string) bool {
	v, ok := r[key]
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(r.String(key))) {
	case "true", "1", "t", "y", "yes", "on":
		return true
	}
	return false
}

// MAC returns the device identifier.
func (r Record) MAC() string {
	return r.String(KeyMAC)
}

// Clone returns a deep copy. Nested objects and arrays are copied too.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return map[string]any(Record(x).Clone())
	case Record:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// SameMAC compares device identifiers case-insensitively.
func SameMAC(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IndexByMAC returns the position of the record for mac, or -1.
func IndexByMAC(records []Record, mac string) int {
	for i, r := range records {
		if SameMAC(r.MAC(), mac) {
			return i
		}
	}
	return -1
}

// ByMAC returns the record for mac, or nil.
func ByMAC(records []Record, mac string) Record {
	if i := IndexByMAC(records, mac); i >= 0 {
		return records[i]
	}
	return nil
}

// CloneRecords deep-copies a record list.
func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// StaticDocument is the body of /pw-conf.json.
type StaticDocument struct {
	Static []Record `json:"static"`
}

// ControlDocument is the body of /pw-control.json. Top-level keys other
// than "dynamic" (log_level, log_comm, ...) are preserved on write.
type ControlDocument struct {
	Dynamic []Record
	Extra   map[string]json.RawMessage
}

// Clone returns a deep copy.
func (d ControlDocument) Clone() ControlDocument {
	out := ControlDocument{Dynamic: CloneRecords(d.Dynamic)}
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func (d *ControlDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Dynamic = nil
	d.Extra = nil
	for k, v := range raw {
		if k == "dynamic" {
			if err := json.Unmarshal(v, &d.Dynamic); err != nil {
				return fmt.Errorf("dynamic: %w", err)
			}
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[k] = v
	}
	return nil
}

func (d ControlDocument) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+1)
	for k, v := range d.Extra {
		out[k] = v
	}
	dynamic := d.Dynamic
	if dynamic == nil {
		dynamic = []Record{}
	}
	out["dynamic"] = dynamic
	return json.Marshal(out)
}
