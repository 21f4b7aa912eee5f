// Package estimate runs advisory size estimates in the background. Input
// changes are debounced, a newer input always supersedes an older one, and
// estimation failures only ever clear the estimate.
package estimate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"arstate/internal/media"
)

// DefaultDebounce is how long input must stay unchanged before estimating.
const DefaultDebounce = 500 * time.Millisecond

// Func computes one estimate. It should return promptly once ctx is done.
type Func[T any] func(ctx context.Context, input T) (media.Snapshot, error)

// Status is what a view renders. Snapshot is only meaningful when Valid.
type Status struct {
	State      media.State
	Snapshot   media.Snapshot
	Valid      bool
	Generation uint64
}

// Estimating reports whether the view should show an "estimating" indicator.
func (s Status) Estimating() bool {
	return s.State.Pending()
}

type Loop[T any] struct {
	estimate Func[T]
	delay    time.Duration
	log      zerolog.Logger
	base     context.Context

	mu      sync.Mutex
	gen     uint64
	status  Status
	timer   *time.Timer
	cancel  context.CancelFunc
	changes chan Status
	closed  bool
}

// New starts an idle loop. Estimates run with contexts derived from ctx.
func New[T any](ctx context.Context, fn Func[T], delay time.Duration, log zerolog.Logger) *Loop[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Loop[T]{
		estimate: fn,
		delay:    delay,
		log:      log.With().Str("comp", "estimate").Logger(),
		base:     ctx,
		status:   Status{State: media.StateIdle},
		changes:  make(chan Status, 1),
	}
}

// Update records a new input. The current estimate is dropped at once, any
// in-flight estimate is cancelled, and the debounce period restarts.
func (l *Loop[T]) Update(input T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.gen++
	gen := l.gen
	l.stopLocked()
	l.status = Status{State: media.StateDebouncing, Generation: gen}
	l.timer = time.AfterFunc(l.delay, func() { l.run(gen, input) })
	l.publishLocked()
}

// Status returns the latest state.
func (l *Loop[T]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Changes delivers the latest status after every transition. Slow readers
// only see the most recent one. The channel is closed by Close.
func (l *Loop[T]) Changes() <-chan Status {
	return l.changes
}

func (l *Loop[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.stopLocked()
	close(l.changes)
}

func (l *Loop[T]) run(gen uint64, input T) {
	l.mu.Lock()
	if l.closed || gen != l.gen {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(l.base)
	l.cancel = cancel
	l.status = Status{State: media.StateEstimating, Generation: gen}
	l.publishLocked()
	l.mu.Unlock()

	snap, err := l.estimate(ctx, input)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || gen != l.gen {
		l.log.Debug().Uint64("generation", gen).Msg("stale estimate discarded")
		return
	}
	l.cancel = nil
	l.status = Status{State: media.StateIdle, Generation: gen}
	if err != nil {
		l.log.Debug().Err(err).Uint64("generation", gen).Msg("estimate failed")
	} else {
		l.status.Snapshot = snap
		l.status.Valid = true
	}
	l.publishLocked()
}

func (l *Loop[T]) stopLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// publishLocked replaces any undelivered status with the current one.
func (l *Loop[T]) publishLocked() {
	select {
	case l.changes <- l.status:
		return
	default:
	}
	select {
	case <-l.changes:
	default:
	}
	select {
	case l.changes <- l.status:
	default:
	}
}
