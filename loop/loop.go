// Package loop runs functions on a single goroutine. Subjects are not safe
// for concurrent use, so every goroutine that touches them (HTTP handlers,
// tickers, relay callbacks) hands its work to the loop that owns them.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maxpert/herald/telemetry"
	"github.com/rs/zerolog/log"
)

// DefaultQueueSize is the task buffer used when New is given a non-positive size.
const DefaultQueueSize = 256

var (
	// ErrLoopClosed is returned for tasks submitted after Close.
	ErrLoopClosed = errors.New("loop closed")

	// ErrTaskPanicked is returned by Do when the task panicked.
	ErrTaskPanicked = errors.New("task panicked")
)

type task struct {
	fn     func()
	result chan error // nil for fire-and-forget tasks
}

// Loop is a single-goroutine task executor.
type Loop struct {
	tasks     chan task
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

// New creates a loop buffering up to queue pending tasks.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	return &Loop{
		tasks:   make(chan task, queue),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled or Close is called. Tasks still
// queued at Close are run before Run returns. Run must be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("loop already running")
	}
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.drain()
			return nil
		case t := <-l.tasks:
			l.exec(t)
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			l.exec(t)
		default:
			return
		}
	}
}

func (l *Loop) exec(t task) {
	telemetry.LoopQueueDepth.Set(float64(len(l.tasks)))
	err := call(t.fn)
	if err != nil {
		telemetry.LoopTasksTotal.With("panic").Inc()
		log.Error().Err(err).Msg("Owner loop task panicked")
	} else {
		telemetry.LoopTasksTotal.With("ok").Inc()
	}
	if t.result != nil {
		t.result <- err
	}
}

// call runs fn and turns a panic into an error so one bad subscriber does
// not take the loop down.
func call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	fn()
	return nil
}

// Submit queues fn without waiting for it. It blocks while the queue is full.
func (l *Loop) Submit(fn func()) error {
	return l.enqueue(task{fn: fn})
}

func (l *Loop) enqueue(t task) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	select {
	case l.tasks <- t:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-l.stopped:
		return ErrLoopClosed
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	result := make(chan error, 1)
	if err := l.enqueue(task{fn: fn, result: result}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	}
}

// Close stops accepting tasks. Run finishes the queued ones and returns.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}
