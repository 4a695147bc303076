// Package loop is the single-threaded cooperative scheduler the navigation
// engine runs on. Every mutation of engine state happens inside a task
// executed by the loop goroutine; blocking I/O runs elsewhere and hands its
// continuation back through Go.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Loop is a FIFO task queue with frame ticks and idle tracking.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	pending int // async work started with Go and not yet posted back
	running bool
	idle    chan struct{}
	wake    chan struct{}
	logger  *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// New creates an idle loop. Nothing runs until Run or RunUntilIdle is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		idle:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		logger: slog.Default(),
	}
	close(l.idle)
	for _, o := range opts {
		o(l)
	}
	return l
}

// Post enqueues fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.markBusyLocked()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Go runs work on a new goroutine and posts the continuation it returns
// (if any) back to the loop. The loop is not idle while work is running.
func (l *Loop) Go(work func() func()) {
	l.mu.Lock()
	l.markBusyLocked()
	l.pending++
	l.mu.Unlock()

	go func() {
		var cont func()
		defer func() {
			l.mu.Lock()
			l.pending--
			if cont != nil {
				l.queue = append(l.queue, cont)
			} else if len(l.queue) == 0 && l.pending == 0 && !l.running {
				l.markIdleLocked()
			}
			l.mu.Unlock()
			l.signal()
		}()
		cont = work()
	}()
}

// Frame is a handle on a callback scheduled with RequestFrame.
type Frame struct {
	canceled atomic.Bool
}

// Cancel prevents the callback from running. No effect once it has run.
func (f *Frame) Cancel() {
	if f != nil {
		f.canceled.Store(true)
	}
}

// RequestFrame schedules fn for the next frame tick, after every task
// already queued.
func (l *Loop) RequestFrame(fn func()) *Frame {
	f := &Frame{}
	l.Post(func() {
		if f.canceled.Load() {
			return
		}
		fn()
	})
	return f
}

// Run executes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if fn := l.next(); fn != nil {
			l.exec(fn)
			continue
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunUntilIdle executes tasks on the calling goroutine until the queue is
// empty and no async work is outstanding.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	for {
		fn := l.next()
		if fn != nil {
			l.exec(fn)
			continue
		}
		l.mu.Lock()
		done := len(l.queue) == 0 && l.pending == 0
		l.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitIdle blocks until the loop has nothing queued or in flight. It must be
// called from outside the loop goroutine while Run is active.
func (l *Loop) WaitIdle(ctx context.Context) error {
	l.mu.Lock()
	ch := l.idle
	l.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.running = true
	return fn
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "panic", r)
		}
		l.mu.Lock()
		l.running = false
		if len(l.queue) == 0 && l.pending == 0 {
			l.markIdleLocked()
		}
		l.mu.Unlock()
	}()
	fn()
}

func (l *Loop) markBusyLocked() {
	select {
	case <-l.idle:
		l.idle = make(chan struct{})
	default:
	}
}

func (l *Loop) markIdleLocked() {
	select {
	case <-l.idle:
	default:
		close(l.idle)
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
