package reader

import (
	"errors"
	"fmt"
	"time"

	"rfidscan/pin"
)

// ErrUnknownType is returned by New for an unrecognised reader type.
var ErrUnknownType = errors.New("unknown reader type")

// Tag is a single successful read.
type Tag struct {
	ID   string
	Text string
}

// Device is the interface for all tag reader implementations.
// Implementations must not block in TryRead for more than a few milliseconds.
type Device interface {
	// TryRead makes one attempt to read a tag. A return of (Tag{}, false, nil)
	// means no tag is present yet.
	TryRead() (Tag, bool, error)

	// Release releases any hardware resources. Repeated calls return nil.
	Release() error
}

// PageReader is implemented by readers that can fetch raw tag memory pages
// without authentication.
type PageReader interface {
	// TryReadPage reads the 16 bytes starting at page. ok is false when no
	// tag is present. A present tag that refuses the read yields ok with
	// empty data.
	TryReadPage(page byte) (data []byte, ok bool, err error)
}

// Config holds configuration for all reader implementations.
type Config struct {
	Type   string `yaml:"type"`   // "mfrc522", "serial", "wiegand", "keyboard", "pipe", "none"
	Device string `yaml:"device"` // e.g. "/dev/ttyUSB0", "/dev/input/event0", SPI port name
	Baud   int    `yaml:"baud"`   // baud rate for serial devices
	Format string `yaml:"format"` // keyboard digit format, e.g. "10h"

	// MFRC522 reset line (nil = not wired)
	ResetPin *int      `yaml:"reset_pin"`
	Pins     pin.Config `yaml:",inline"`

	// Reads buffered by background readers expire after this long.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// New creates a Device based on the provided configuration.
func New(cfg Config) (Device, error) {
	switch cfg.Type {
	case "", "mfrc522", "rc522":
		return NewMFRC522(cfg.Device, cfg.ResetPin, cfg.Pins)
	case "serial":
		return NewSerial(cfg.Device, cfg.StaleAfter)
	case "wiegand":
		return NewWiegand(cfg.Device, cfg.Baud, cfg.StaleAfter)
	case "keyboard", "10h-kbd":
		return NewKeyboard(cfg.Device, cfg.Format, cfg.StaleAfter)
	case "pipe":
		return NewPipe(cfg.Device, cfg.StaleAfter)
	case "none":
		return &Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}
