package canvas

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFrameInterval is the delay RequestFrame uses when the loop is not
// driven by a display.
const DefaultFrameInterval = time.Second / 120

// ErrLoopClosed is returned by Run after Close.
var ErrLoopClosed = errors.New("canvas: loop closed")

// Loop is a single-threaded task queue. Pointer events, timers, network
// deliveries and redraws are posted as tasks and run one at a time on the
// goroutine calling Run, so engine state needs no locks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}

	FrameInterval time.Duration
}

// NewLoop returns a loop that is not yet running; call Run to drain it.
func NewLoop() *Loop {
	return &Loop{
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		FrameInterval: DefaultFrameInterval,
	}
}

// Post queues fn. It never blocks and is safe from any goroutine, including
// the loop itself. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes tasks until ctx is done or Close is called. A panicking task
// is logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.run(fn)
		}
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return ErrLoopClosed
		case <-l.wake:
		}
	}
}

// Close stops the loop. Pending tasks are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} { return l.done }

// After posts fn to the loop once d has elapsed. The returned cancel func
// prevents fn from running if it has not started yet.
func (l *Loop) After(d time.Duration, fn func()) (cancel func()) {
	var stopped atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !stopped.Load() {
				fn()
			}
		})
	})
	return func() {
		stopped.Store(true)
		t.Stop()
	}
}

// RequestFrame schedules fn for the next frame.
func (l *Loop) RequestFrame(fn func()) (cancel func()) {
	return l.After(l.FrameInterval, fn)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("loop task panicked")
		}
	}()
	fn()
}
