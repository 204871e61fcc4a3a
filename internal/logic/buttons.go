package logic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrButtonSpec is returned for malformed button mappings.
var ErrButtonSpec = errors.New("invalid button mapping")

// Button binds a GPIO line to the circle it toggles.
type Button struct {
	Pin int    // BCM numbering
	MAC string // circle identifier
}

// ParseButtons parses "pin=mac,pin=mac". An empty string yields no buttons.
func ParseButtons(s string) ([]Button, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var buttons []Button
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		pin, mac, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q has no '='", ErrButtonSpec, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(pin))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad pin %q", ErrButtonSpec, pin)
		}
		mac = strings.TrimSpace(mac)
		if mac == "" {
			return nil, fmt.Errorf("%w: pin %d has no circle", ErrButtonSpec, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: pin %d used twice", ErrButtonSpec, n)
		}
		seen[n] = true
		buttons = append(buttons, Button{Pin: n, MAC: mac})
	}
	return buttons, nil
}

// Pins returns the pin of every button, in order.
func Pins(buttons []Button) []int {
	pins := make([]int, len(buttons))
	for i, b := range buttons {
		pins[i] = b.Pin
	}
	return pins
}

// ToggleValue returns the switch value a press sends given the relay state
// last reported for the circle. Unknown state switches on.
func ToggleValue(relay string) string {
	if strings.EqualFold(strings.TrimSpace(relay), "on") {
		return "off"
	}
	return "on"
}
