package pin

import (
	"errors"
	"fmt"
)

// ErrUnknownDriver is returned by Open for an unrecognised driver name.
var ErrUnknownDriver = errors.New("unknown gpio driver")

// Output is a single GPIO line driven as an output.
type Output interface {
	// High drives the line high.
	High() error

	// Low drives the line low.
	Low() error

	// Close releases the line. Calling Close more than once is harmless.
	Close() error
}

// Config selects the GPIO driver shared by every pin of a component.
type Config struct {
	Driver string `yaml:"pin_driver"` // "gpiomem", "cdev", "legacy"
	Chip   string `yaml:"chip"`       // gpiochip name for the cdev driver
}

// Open requests pin as an output using the configured driver. The line
// starts low.
func Open(cfg Config, pin int) (Output, error) {
	if pin < 0 {
		return nil, fmt.Errorf("invalid pin %d", pin)
	}

	switch cfg.Driver {
	case "", "gpiomem":
		if pin > 0xFF {
			return nil, fmt.Errorf("invalid pin %d", pin)
		}
		return NewMem(uint8(pin))
	case "cdev":
		return NewCdev(cfg.Chip, pin)
	case "legacy":
		return NewLegacy(pin)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
