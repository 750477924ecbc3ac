package indicator

import (
	"errors"

	"rfidscan/pin"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Idle sets the indicator to idle/ready state.
	Idle()

	// Scanning shows that a scan request is waiting for a tag.
	Scanning()

	// Found shows a successful read.
	Found()

	// TimedOut shows that no tag was presented before the deadline.
	TimedOut()

	// Failed shows a reader error.
	Failed()

	// Connected marks the status link as up and returns to idle.
	Connected()

	// ConnectionLost sets the indicator to connection lost state.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	GreenPin  *int       `yaml:"green_pin"`
	YellowPin *int       `yaml:"yellow_pin"`
	RedPin    *int       `yaml:"red_pin"`
	Pins      pin.Config `yaml:",inline"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.Pins, cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return nil, errors.Join(err, releaseAll(indicators))
		}
		indicators = append(indicators, neo)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}

func releaseAll(indicators []Indicator) error {
	var errs []error
	for _, ind := range indicators {
		errs = append(errs, ind.Release())
	}
	return errors.Join(errs...)
}
