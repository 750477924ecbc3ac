package pin

import (
	"fmt"
	"sync"

	"github.com/warthog618/gpio"
)

// The legacy driver maps GPIO memory once for the whole process.
var (
	legacyMu   sync.Mutex
	legacyRefs int
)

// Legacy drives a pin with the memory mapped warthog618/gpio library.
type Legacy struct {
	mu  sync.Mutex
	pin *gpio.Pin
}

// NewLegacy configures pin as an output, initially low.
func NewLegacy(pin int) (*Legacy, error) {
	legacyMu.Lock()
	defer legacyMu.Unlock()

	if legacyRefs == 0 {
		if err := gpio.Open(); err != nil {
			return nil, fmt.Errorf("open gpio: %w", err)
		}
	}
	legacyRefs++

	p := gpio.NewPin(pin)
	p.Output()
	p.Low()

	return &Legacy{pin: p}, nil
}

// High implements Output.High.
func (l *Legacy) High() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pin == nil {
		return errClosed
	}
	l.pin.High()
	return nil
}

// Low implements Output.Low.
func (l *Legacy) Low() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pin == nil {
		return errClosed
	}
	l.pin.Low()
	return nil
}

// Close implements Output.Close. The memory mapping is released with the
// last open pin.
func (l *Legacy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pin == nil {
		return nil
	}
	l.pin.Low()
	l.pin = nil

	legacyMu.Lock()
	defer legacyMu.Unlock()
	legacyRefs--
	if legacyRefs == 0 {
		return gpio.Close()
	}
	return nil
}
