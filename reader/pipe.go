package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Pipe implements Device on a named pipe so tags can be injected without
// hardware. Each line written to the pipe is one command:
//
//	tag <id> [text...]   - a tag is presented (alias: rfid)
//	error <message>      - the reader fails
//
// Blank lines and lines starting with # are ignored.
type Pipe struct {
	*buffered
	path    string
	file    *os.File
	scanner *bufio.Scanner
}

// NewPipe creates the named pipe at path, replacing anything already there.
func NewPipe(path string, staleAfter time.Duration) (*Pipe, error) {
	if path == "" {
		return nil, errors.New("pipe reader needs a device path")
	}

	os.Remove(path)
	if err := syscall.Mkfifo(path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", path, err)
	}

	// Opening read-write never blocks waiting for a writer and keeps the
	// pipe from reporting EOF between writers.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("open named pipe %s: %w", path, err)
	}

	p := &Pipe{path: path, file: f, scanner: bufio.NewScanner(f)}
	p.buffered = newBuffered(p.read, p.close, staleAfter)
	return p, nil
}

func (p *Pipe) read(ctx context.Context) (Tag, bool, error) {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return parsePipeLine(line)
	}
	if err := p.scanner.Err(); err != nil {
		return Tag{}, false, fmt.Errorf("read %s: %w", p.path, err)
	}
	return Tag{}, false, fmt.Errorf("read %s: pipe closed", p.path)
}

func (p *Pipe) close() error {
	return errors.Join(p.file.Close(), os.Remove(p.path))
}

// parsePipeLine turns one command into a read result.
func parsePipeLine(line string) (Tag, bool, error) {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "tag", "rfid":
		if len(parts) < 2 {
			return Tag{}, false, fmt.Errorf("%s requires a tag id", cmd)
		}
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return Tag{}, false, fmt.Errorf("invalid tag id: %s", parts[1])
		}
		return Tag{ID: parts[1], Text: strings.Join(parts[2:], " ")}, true, nil

	case "error":
		msg := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		if msg == "" {
			msg = "reader error"
		}
		return Tag{}, false, errors.New(msg)

	default:
		return Tag{}, false, fmt.Errorf("unknown command: %s", cmd)
	}
}
