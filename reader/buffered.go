package reader

import (
	"context"
	"sync"
	"time"
)

const defaultStaleAfter = time.Second

type bufferedRead struct {
	tag Tag
	err error
	at  time.Time
}

// buffered adapts a blocking frame reader to the non-blocking Device
// contract. A background goroutine keeps reading and holds on to the most
// recent result until TryRead collects it or it goes stale.
type buffered struct {
	latest     chan bufferedRead
	staleAfter time.Duration
	now        func() time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	closeFn func() error
	err     error
}

// readFunc blocks until a tag is read, ctx is cancelled or the device fails.
// A return of (Tag{}, false, nil) means nothing usable was read.
type readFunc func(ctx context.Context) (Tag, bool, error)

func newBuffered(read readFunc, closeFn func() error, staleAfter time.Duration) *buffered {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &buffered{
		latest:     make(chan bufferedRead, 1),
		staleAfter: staleAfter,
		now:        time.Now,
		cancel:     cancel,
		done:       make(chan struct{}),
		closeFn:    closeFn,
	}

	go b.run(ctx, read)
	return b
}

func (b *buffered) run(ctx context.Context, read readFunc) {
	defer close(b.done)

	for {
		tag, ok, err := read(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil && !ok {
			continue
		}

		b.offer(bufferedRead{tag: tag, err: err, at: b.now()})

		// A failed device keeps failing; back off instead of spinning.
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// offer replaces whatever is waiting in the slot.
func (b *buffered) offer(r bufferedRead) {
	select {
	case <-b.latest:
	default:
	}
	select {
	case b.latest <- r:
	default:
	}
}

// TryRead implements Device.TryRead.
func (b *buffered) TryRead() (Tag, bool, error) {
	select {
	case r := <-b.latest:
		if b.now().Sub(r.at) > b.staleAfter {
			return Tag{}, false, nil
		}
		if r.err != nil {
			return Tag{}, false, r.err
		}
		return r.tag, true, nil
	default:
		return Tag{}, false, nil
	}
}

// Release implements Device.Release.
func (b *buffered) Release() error {
	b.once.Do(func() {
		b.cancel()
		if b.closeFn != nil {
			b.err = b.closeFn()
		}
		select {
		case <-b.done:
		case <-time.After(2 * time.Second):
		}
	})
	return b.err
}
