package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	stx = 0x02
	etx = 0x03
)

// Wiegand implements Device for Wiegand-to-serial converters that send
// STX, ASCII hex digits, ETX.
type Wiegand struct {
	*buffered
	port serial.Port
}

// NewWiegand opens device and starts reading card frames in the background.
func NewWiegand(device string, baud int, staleAfter time.Duration) (*Wiegand, error) {
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	_ = p.SetReadTimeout(50 * time.Millisecond)

	w := &Wiegand{port: p}
	w.flush()
	w.buffered = newBuffered(w.read, p.Close, staleAfter)
	return w, nil
}

func (w *Wiegand) read(ctx context.Context) (Tag, bool, error) {
	first := make([]byte, 1)
	n, err := w.port.Read(first)
	if err != nil {
		return Tag{}, false, fmt.Errorf("read STX: %w", err)
	}
	if n == 0 {
		return Tag{}, false, nil
	}

	if first[0] != stx {
		w.flush()
		return Tag{}, false, nil
	}

	var body strings.Builder
	buf := make([]byte, 1)

	for {
		n, err := w.port.Read(buf)
		if err != nil {
			return Tag{}, false, fmt.Errorf("read body: %w", err)
		}
		if n == 0 {
			w.flush()
			return Tag{}, false, nil
		}
		if buf[0] == etx {
			break
		}
		body.WriteByte(buf[0])
	}

	card, err := decodeWiegandFrame(body.String())
	if err != nil {
		return Tag{}, false, err
	}
	return Tag{ID: strconv.FormatUint(card, 10)}, true, nil
}

// decodeWiegandFrame returns the card number carried in the last six hex
// digits of a frame body left-padded to ten digits.
func decodeWiegandFrame(body string) (uint64, error) {
	id := body
	for len(id) < 10 {
		id = "0" + id
	}
	if len(id) > 10 {
		return 0, fmt.Errorf("frame %q longer than 10 digits", body)
	}

	if _, err := strconv.ParseUint(id, 16, 64); err != nil {
		return 0, fmt.Errorf("invalid hex frame %q: %w", body, err)
	}

	cardHex := id[4:10]
	card, err := strconv.ParseUint(cardHex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse card hex %q: %w", cardHex, err)
	}
	return card, nil
}

// flush drains the input buffer to discard partial frames.
func (w *Wiegand) flush() {
	_ = w.port.SetReadTimeout(10 * time.Millisecond)
	defer func() {
		_ = w.port.SetReadTimeout(50 * time.Millisecond)
	}()

	tmp := make([]byte, 64)
	for {
		n, err := w.port.Read(tmp)
		if err != nil || n == 0 {
			return
		}
	}
}
