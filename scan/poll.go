package scan

import (
	"context"
	"errors"
	"time"

	"rfidscan/reader"
)

// DefaultInterval is the pause between two attempts of a poll.
const DefaultInterval = time.Millisecond

// ErrNoTag is returned by Poll when no tag was seen before the deadline.
var ErrNoTag = errors.New("no tag found before timeout")

// Attempt makes one non-blocking read. ok is false when no tag is present.
type Attempt func() (tag reader.Tag, ok bool, err error)

// Poll calls attempt until it reports a tag, fails, or timeout has elapsed
// since the call. The first attempt is made immediately, so a timeout of
// zero or less results in exactly one attempt. Between attempts Poll
// sleeps for interval. Cancelling ctx stops the loop with ctx.Err().
func Poll(ctx context.Context, timeout, interval time.Duration, attempt Attempt) (reader.Tag, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)

	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	for {
		tag, ok, err := attempt()
		if err != nil {
			return reader.Tag{}, err
		}
		if ok {
			return tag, nil
		}
		if !time.Now().Before(deadline) {
			return reader.Tag{}, ErrNoTag
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return reader.Tag{}, ctx.Err()
		case <-timer.C:
		}
	}
}
