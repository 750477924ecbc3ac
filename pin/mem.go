package pin

import (
	"fmt"
	"sync"

	"github.com/hjkoskel/govattu"
)

// Mem drives a pin through /dev/gpiomem.
type Mem struct {
	mu     sync.Mutex
	hw     govattu.Vattu
	pin    uint8
	closed bool
}

// NewMem maps the GPIO registers and configures pin as an output.
func NewMem(pin uint8) (*Mem, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	hw.PinMode(pin, govattu.ALToutput)
	hw.PinClear(pin)

	return &Mem{hw: hw, pin: pin}, nil
}

// High implements Output.High.
func (m *Mem) High() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.hw.PinSet(m.pin)
	return nil
}

// Low implements Output.Low.
func (m *Mem) Low() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.hw.PinClear(m.pin)
	return nil
}

// Close implements Output.Close. The pin is left low.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hw.PinClear(m.pin)
	return m.hw.Close()
}
