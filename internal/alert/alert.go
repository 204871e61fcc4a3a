// Package alert holds the single user-facing status message shown by the
// dashboard. Successes and failures of backend writes both land here.
package alert

// Type is the severity of an alert.
type Type string

const (
	TypeSuccess Type = "success"
	TypeDanger  Type = "danger"
)

// Alert is a user-facing status message.
type Alert struct {
	Type    Type   `json:"type"`
	Message string `json:"msg"`
}

// Success returns a success alert.
func Success(msg string) Alert {
	return Alert{Type: TypeSuccess, Message: msg}
}

// Danger returns an error alert.
func Danger(msg string) Alert {
	return Alert{Type: TypeDanger, Message: msg}
}

// Sink receives alerts. Implementations must be safe for concurrent use.
type Sink interface {
	SetAlert(a Alert)
}

// Discard is a Sink that drops every alert.
var Discard Sink = discard{}

type discard struct{}

func (discard) SetAlert(Alert) {}
