// Package eventloop provides the single-threaded cooperative loop that owns
// all display controller state. Producers on other goroutines (timers, GPIO
// watchers, D-Bus handlers, detection plugins) never touch controller state
// directly; they Post work here.
package eventloop

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrStopped is returned by Call when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Poster enqueues work for the loop. Implemented by *Loop and by test queues.
type Poster interface {
	Post(fn func())
}

// Loop runs posted functions one at a time, in arrival order.
type Loop struct {
	queue chan func()
	done  chan struct{}

	// overflow holds posts that found the queue full. While it is non-empty
	// every new post goes here too, so arrival order holds.
	mu       sync.Mutex
	overflow []func()
	wake     chan struct{}
}

// New creates a Loop with the given queue depth.
func New(depth int) *Loop {
	if depth < 1 {
		depth = 1
	}
	return &Loop{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
}

// Post enqueues fn without blocking, so it is safe from the loop goroutine
// itself. fn is dropped once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}

	l.mu.Lock()
	if len(l.overflow) == 0 {
		select {
		case l.queue <- fn:
			l.mu.Unlock()
			return
		default:
		}
	}
	l.overflow = append(l.overflow, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		case <-l.wake:
			l.drainOverflow(ctx)
		}
	}
}

// drainOverflow runs what is still in the queue, which was all posted before
// the overflow, then the overflow itself.
func (l *Loop) drainOverflow(ctx context.Context) {
	for {
		select {
		case fn := <-l.queue:
			fn()
			continue
		default:
		}
		break
	}

	l.mu.Lock()
	pending := l.overflow
	l.overflow = nil
	l.mu.Unlock()

	for _, fn := range pending {
		if ctx.Err() != nil {
			return
		}
		fn()
	}
}
