package indicator

import (
	"errors"
	"fmt"
	"sync"

	"rfidscan/pin"
)

// GPIO implements Indicator using discrete GPIO LED pins. Any of the
// outputs may be nil.
type GPIO struct {
	mu     sync.Mutex
	green  pin.Output
	yellow pin.Output
	red    pin.Output
}

// NewGPIO opens the configured LED pins. All LEDs start off.
func NewGPIO(pins pin.Config, greenPin, yellowPin, redPin *int) (*GPIO, error) {
	g := &GPIO{}
	for _, p := range []struct {
		name string
		num  *int
		out  *pin.Output
	}{
		{"green", greenPin, &g.green},
		{"yellow", yellowPin, &g.yellow},
		{"red", redPin, &g.red},
	} {
		if p.num == nil {
			continue
		}
		out, err := pin.Open(pins, *p.num)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open %s led: %w", p.name, err), g.Release())
		}
		*p.out = out
	}
	return g, nil
}

// NewGPIOWithOutputs builds a GPIO indicator from already opened outputs.
func NewGPIOWithOutputs(green, yellow, red pin.Output) *GPIO {
	return &GPIO{green: green, yellow: yellow, red: red}
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.show(false, false, false)
}

// Scanning implements Indicator.Scanning.
func (g *GPIO) Scanning() {
	g.show(false, true, false)
}

// Found implements Indicator.Found.
func (g *GPIO) Found() {
	g.show(true, false, false)
}

// TimedOut implements Indicator.TimedOut.
func (g *GPIO) TimedOut() {
	g.show(false, true, true)
}

// Failed implements Indicator.Failed.
func (g *GPIO) Failed() {
	g.show(false, false, true)
}

// Connected implements Indicator.Connected.
func (g *GPIO) Connected() {
	g.show(false, false, false)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.show(false, true, true)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.show(false, false, false)
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for _, out := range g.outputs() {
		errs = append(errs, out.Low(), out.Close())
	}
	g.green, g.yellow, g.red = nil, nil, nil
	return errors.Join(errs...)
}

// show drives each LED to the requested state.
func (g *GPIO) show(green, yellow, red bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set(g.green, green)
	set(g.yellow, yellow)
	set(g.red, red)
}

func set(out pin.Output, on bool) {
	if out == nil {
		return
	}
	if on {
		_ = out.High()
	} else {
		_ = out.Low()
	}
}

func (g *GPIO) outputs() []pin.Output {
	var outs []pin.Output
	for _, out := range []pin.Output{g.green, g.yellow, g.red} {
		if out != nil {
			outs = append(outs, out)
		}
	}
	return outs
}
