package pin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

var errClosed = errors.New("pin closed")

// Cdev drives a pin through the GPIO character device.
type Cdev struct {
	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewCdev requests offset on chip as an output, initially low.
func NewCdev(chip string, offset int) (*Cdev, error) {
	if chip == "" {
		chip = "gpiochip0"
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithConsumer("rfidscan"),
		gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}

	return &Cdev{line: line}, nil
}

// High implements Output.High.
func (c *Cdev) High() error {
	return c.set(1)
}

// Low implements Output.Low.
func (c *Cdev) Low() error {
	return c.set(0)
}

func (c *Cdev) set(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.line == nil {
		return errClosed
	}
	return c.line.SetValue(v)
}

// Close implements Output.Close.
func (c *Cdev) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.line == nil {
		return nil
	}
	_ = c.line.SetValue(0)
	err := c.line.Close()
	c.line = nil
	return err
}
