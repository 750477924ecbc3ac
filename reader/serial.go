package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tarm/serial"
)

var (
	serialPreamble   = []byte{0x02, 0x09}
	serialTerminator = []byte{0x03}
)

// SerialReader implements Device for USB serial RFID readers using a fixed frame.
// Protocol: [0x02][0x09][data...][checksum][0x03]
type SerialReader struct {
	*buffered
	port   *serial.Port
	device string
}

// NewSerial opens device and starts reading frames in the background.
func NewSerial(device string, staleAfter time.Duration) (*SerialReader, error) {
	c := &serial.Config{
		Name:        device,
		Baud:        115200,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	s := &SerialReader{port: port, device: device}
	s.buffered = newBuffered(s.read, port.Close, staleAfter)
	return s, nil
}

func (s *SerialReader) read(ctx context.Context) (Tag, bool, error) {
	buff := make([]byte, 9)

	n, err := s.port.Read(buff)
	if errors.Is(err, io.EOF) {
		return Tag{}, false, nil // Timeout, try again
	}
	if err != nil {
		return Tag{}, false, fmt.Errorf("read %s: %w", s.device, err)
	}

	tagno, ok := decodeSerialFrame(buff[:n])
	if !ok {
		return Tag{}, false, nil
	}
	return Tag{ID: strconv.FormatUint(tagno, 10)}, true, nil
}

// decodeSerialFrame validates a 9 byte frame and returns the tag number.
func decodeSerialFrame(buff []byte) (uint64, bool) {
	if len(buff) != 9 {
		return 0, false // Partial read
	}
	if !bytes.Equal(buff[0:2], serialPreamble) {
		return 0, false
	}
	if !bytes.Equal(buff[8:9], serialTerminator) {
		return 0, false
	}

	data := buff[1:7]
	xor := data[0]
	for i := 1; i < len(data); i++ {
		xor ^= data[i]
	}
	if xor != buff[7] {
		return 0, false // Checksum mismatch
	}

	tagno := (uint64(data[2]) << 24) | (uint64(data[3]) << 16) | (uint64(data[4]) << 8) | uint64(data[5])
	return tagno, true
}
