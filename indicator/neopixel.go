package indicator

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoConnectionLost = "@2 !150000 001010"
	neoNormalIdle     = "@3 !150000 400000"
	neoScanning       = "@2 !30000 202000"
	neoFound          = "@1 !50000 8000"
	neoTimedOut       = "@2 !10000 2020"
	neoFailed         = "@2 !10000 ff"
	neoTerminated     = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	mu         sync.Mutex
	pipe       io.WriteCloser
	idleString string
}

// NewNeopixel opens the neopixel tool's pipe.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return NewNeopixelWriter(f), nil
}

// NewNeopixelWriter sends neopixel commands to w. The idle pattern shows
// connection lost until Connected is called.
func NewNeopixelWriter(w io.WriteCloser) *Neopixel {
	return &Neopixel{
		pipe:       w,
		idleString: neoConnectionLost,
	}
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(n.idleString)
}

// Scanning implements Indicator.Scanning.
func (n *Neopixel) Scanning() { n.send(neoScanning) }

// Found implements Indicator.Found.
func (n *Neopixel) Found() { n.send(neoFound) }

// TimedOut implements Indicator.TimedOut.
func (n *Neopixel) TimedOut() { n.send(neoTimedOut) }

// Failed implements Indicator.Failed.
func (n *Neopixel) Failed() { n.send(neoFailed) }

// Connected implements Indicator.Connected.
func (n *Neopixel) Connected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.idleString = neoNormalIdle
	n.write(n.idleString)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Neopixel) ConnectionLost() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.idleString = neoConnectionLost
	n.write(n.idleString)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() { n.send(neoTerminated) }

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe == nil {
		return nil
	}
	err := n.pipe.Close()
	n.pipe = nil
	return err
}

func (n *Neopixel) send(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(s)
}

func (n *Neopixel) write(s string) {
	if n.pipe != nil {
		_, _ = io.WriteString(n.pipe, s)
	}
}
