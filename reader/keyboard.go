package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kenshaw/evdev"
)

// Keyboard implements Device for USB keyboard-style RFID readers
// that type digits followed by Enter.
type Keyboard struct {
	*buffered
	device    *evdev.Evdev
	events    <-chan *evdev.EventEnvelope
	numDigits int  // expected number of digits (0 = any)
	isHex     bool // true for hex input, false for decimal
	format    string
}

// NewKeyboard opens the input device and starts collecting badge lines.
// Format is "10h" (10 hex digits), "10d" (10 decimal), "8h", "8d", etc.
// An empty format means "10h".
func NewKeyboard(device string, format string, staleAfter time.Duration) (*Keyboard, error) {
	dev, err := evdev.OpenFile(device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", device, err)
	}

	numDigits, isHex, format := parseKeyboardFormat(format)

	k := &Keyboard{
		device:    dev,
		numDigits: numDigits,
		isHex:     isHex,
		format:    format,
	}
	k.buffered = newBuffered(k.read, dev.Close, staleAfter)
	return k, nil
}

// parseKeyboardFormat splits a format such as "10h" into its digit count
// and base.
func parseKeyboardFormat(format string) (numDigits int, isHex bool, normalized string) {
	if format == "" {
		format = "10h"
	}
	format = strings.ToLower(format)

	isHex = true
	switch {
	case strings.HasSuffix(format, "h"):
		numDigits, _ = strconv.Atoi(strings.TrimSuffix(format, "h"))
	case strings.HasSuffix(format, "d"):
		isHex = false
		numDigits, _ = strconv.Atoi(strings.TrimSuffix(format, "d"))
	default:
		numDigits, _ = strconv.Atoi(format)
	}
	return numDigits, isHex, format
}

// parseBadge converts a typed badge line to a 32 bit tag number.
func parseBadge(line string, numDigits int, isHex bool) (uint64, error) {
	if numDigits > 0 && len(line) != numDigits {
		return 0, fmt.Errorf("bad badge %q: expected %d digits, got %d", line, numDigits, len(line))
	}

	base := 10
	if isHex {
		base = 16
	}
	number, err := strconv.ParseUint(line, base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad badge %q (base %d): %w", line, base, err)
	}
	return number & 0xffffffff, nil
}

func (k *Keyboard) read(ctx context.Context) (Tag, bool, error) {
	if k.events == nil {
		k.events = k.device.Poll(ctx)
	}

	var strbuf string
	for {
		select {
		case <-ctx.Done():
			return Tag{}, false, ctx.Err()
		case event := <-k.events:
			if event == nil {
				return Tag{}, false, fmt.Errorf("keyboard device closed")
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				if event.Value != 1 {
					continue
				}

				if event.Type == evdev.KeyEnter {
					if strbuf == "" {
						continue
					}
					number, err := parseBadge(strbuf, k.numDigits, k.isHex)
					if err != nil {
						return Tag{}, false, err
					}
					return Tag{ID: strconv.FormatUint(number, 10)}, true, nil
				}

				strbuf += evdev.KeyType(event.Code).String()
			}
		}
	}
}
