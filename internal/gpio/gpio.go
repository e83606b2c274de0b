// Package gpio provides the button input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned by NewRealReader where the GPIO character
// device does not exist.
var ErrUnsupported = errors.New("gpio: character device not available")

// Reader reads the button level.
type Reader interface {
	// Read returns whether the button is pressed.
	// The line is a pull-down input and the button is active low:
	// raw 0 = pressed.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Default line (BCM numbering)
const (
	DefaultChip      = "gpiochip0"
	DefaultPinButton = 17
)

func unsupported(chipName string, pin int) error {
	return fmt.Errorf("%w on %s (button %s line %d needs linux)", ErrUnsupported, runtime.GOOS, chipName, pin)
}
