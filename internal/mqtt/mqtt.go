// Package mqtt carries circle commands to Plugwise-2-py and receives its
// state topics, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrefix is the topic root used by Plugwise-2-py.
const DefaultPrefix = "plugwise2py"

// Command names.
const (
	CmdSwitch   = "switch"
	CmdSchedule = "schedule"
)

// Command values.
const (
	ValOn  = "on"
	ValOff = "off"
)

// ErrInvalidValue is returned for command values other than on and off.
var ErrInvalidValue = errors.New("mqtt: command value must be on or off")

// Commander delivers commands to the backend, whatever the transport.
type Commander interface {
	// SendCommand delivers cmd. Returns error if delivery fails (should not
	// crash the process).
	SendCommand(ctx context.Context, cmd Command) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Command is the {topic, payload} envelope accepted by the backend socket
// and its /mqtt/ endpoint.
type Command struct {
	Topic   string         `json:"topic"`
	Payload CommandPayload `json:"payload"`
}

// CommandPayload is the body published on a command topic.
type CommandPayload struct {
	MAC string `json:"mac"`
	Cmd string `json:"cmd"`
	Val string `json:"val"`
}

// CommandTopic returns <prefix>/cmd/<cmd>/<mac>.
func CommandTopic(prefix, cmd, mac string) string {
	return fmt.Sprintf("%s/cmd/%s/%s", prefixOrDefault(prefix), cmd, mac)
}

// StateTopic returns the wildcard subscription for all state topics.
func StateTopic(prefix string) string {
	return prefixOrDefault(prefix) + "/state/#"
}

// NewCommand builds a command envelope. val is normalized to lower case and
// must be on or off.
func NewCommand(prefix, cmd, mac, val string) (Command, error) {
	val = strings.ToLower(strings.TrimSpace(val))
	if val != ValOn && val != ValOff {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidValue, val)
	}
	return Command{
		Topic:   CommandTopic(prefix, cmd, mac),
		Payload: CommandPayload{MAC: mac, Cmd: cmd, Val: val},
	}, nil
}

// NewSwitchCommand builds a relay switch command.
func NewSwitchCommand(prefix, mac, val string) (Command, error) {
	return NewCommand(prefix, CmdSwitch, mac, val)
}

// NewScheduleCommand builds a schedule enable command.
func NewScheduleCommand(prefix, mac, val string) (Command, error) {
	return NewCommand(prefix, CmdSchedule, mac, val)
}

// FormatCommand creates the JSON envelope sent over the socket or posted to
// /mqtt/.
func FormatCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// FormatPayload creates the JSON payload published on the command topic.
func FormatPayload(cmd Command) ([]byte, error) {
	return json.Marshal(cmd.Payload)
}

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(prefix, "/")
}
