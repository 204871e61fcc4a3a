//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	pins  []int
}

// NewRealReader requests pins (BCM numbering) as inputs on the Raspberry Pi
// GPIO chip.
func NewRealReader(pins []int) (*RealReader, error) {
	if len(pins) == 0 {
		return nil, errors.New("gpio: no pins configured")
	}
	chip, err := gpiocdev.NewChip(DefaultChip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Buttons short the line to ground, so hold it high while released.
	lines, err := chip.RequestLines(pins, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer("pw-dashboard"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pins %v: %w", pins, err)
	}

	return &RealReader{
		chip:  chip,
		lines: lines,
		pins:  append([]int(nil), pins...),
	}, nil
}

// Read returns the logical state of every pin.
// Inverts raw GPIO: raw inactive (0) = pressed, raw active (1) = released.
func (r *RealReader) Read() ([]bool, error) {
	raw := make([]int, len(r.pins))
	if err := r.lines.Values(raw); err != nil {
		return nil, fmt.Errorf("read pins %v: %w", r.pins, err)
	}

	pressed := make([]bool, len(raw))
	for i, v := range raw {
		pressed[i] = v == 0
	}
	return pressed, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error

	if r.lines != nil {
		if err := r.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pins: %w", err))
		}
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pins: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
