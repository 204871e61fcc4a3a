// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the toggle buttons.
type Reader interface {
	// Read returns the logical state of every configured line, in the
	// order the pins were given. Buttons pull the line low, so raw
	// inactive (0) = logical pressed.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
