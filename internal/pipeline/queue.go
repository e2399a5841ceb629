// Package pipeline implements bounded queue of pending results that are
// delivered in submission order.
package pipeline

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"
)

// ErrClosed is returned by Queue operations after Close.
var ErrClosed = errors.New("queue closed")

// Executor runs tasks, possibly concurrently.
type Executor interface {
	Submit(ctx context.Context, task func(ctx context.Context)) error
}

// Inline is Executor that runs task in calling goroutine.
type Inline struct{}

// Submit calls task immediately.
func (Inline) Submit(ctx context.Context, task func(ctx context.Context)) error {
	task(ctx)
	return nil
}

// pending result of submitted task.
type pending[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Queue of pending results with capacity of width tasks.
//
// Task is outstanding from Submit until its result is returned by Next,
// and at most Cap tasks are outstanding at any time.
type Queue[T any] struct {
	exec  Executor
	sem   chan struct{}
	slots chan *pending[T]

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	outstanding atomic.Int64
	peak        atomic.Int64
}

// New creates Queue with width capacity on top of exec.
//
// Task context is derived from ctx, so canceling ctx cancels pending tasks.
func New[T any](ctx context.Context, exec Executor, width int) *Queue[T] {
	if width <= 0 {
		width = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Queue[T]{
		exec:   exec,
		sem:    make(chan struct{}, width),
		slots:  make(chan *pending[T], width),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Cap returns queue width.
func (q *Queue[T]) Cap() int { return cap(q.sem) }

// Len returns number of outstanding tasks.
func (q *Queue[T]) Len() int { return int(q.outstanding.Load()) }

// Peak returns maximum number of simultaneously outstanding tasks.
func (q *Queue[T]) Peak() int { return int(q.peak.Load()) }

func (q *Queue[T]) acquire() {
	n := q.outstanding.Inc()
	for {
		p := q.peak.Load()
		if n <= p || q.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (q *Queue[T]) release() {
	q.outstanding.Dec()
	<-q.sem
}

// Submit schedules fn on executor and appends its pending result to the
// tail of queue, blocking while queue is full.
//
// Task context is canceled on Close.
func (q *Queue[T]) Submit(ctx context.Context, fn func(ctx context.Context) (T, error)) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for slot")
	case <-q.ctx.Done():
		return q.doneErr()
	}
	q.acquire()

	p := &pending[T]{done: make(chan struct{})}
	q.slots <- p

	task := func(ctx context.Context) {
		defer close(p.done)
		if err := ctx.Err(); err != nil {
			p.err = err
			return
		}
		p.val, p.err = fn(ctx)
	}
	if err := q.exec.Submit(q.ctx, task); err != nil {
		// Result is still delivered in order.
		p.err = errors.Wrap(err, "submit")
		close(p.done)
		return p.err
	}

	return nil
}

// Next removes head of queue and waits for its result, even if later
// tasks are already done.
func (q *Queue[T]) Next(ctx context.Context) (v T, err error) {
	if q.closed.Load() {
		return v, ErrClosed
	}
	var p *pending[T]
	select {
	case p = <-q.slots:
	case <-ctx.Done():
		return v, errors.Wrap(ctx.Err(), "wait for task")
	case <-q.ctx.Done():
		return v, q.doneErr()
	}
	defer q.release()

	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		return v, errors.Wrap(ctx.Err(), "wait for result")
	case <-q.ctx.Done():
		return v, q.doneErr()
	}
}

// doneErr returns reason of queue context cancellation.
func (q *Queue[T]) doneErr() error {
	if q.closed.Load() {
		return ErrClosed
	}
	return errors.Wrap(q.ctx.Err(), "queue")
}

// Close cancels pending tasks and rejects new ones without waiting for
// running tasks. Results of canceled tasks are dropped.
func (q *Queue[T]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.cancel()
	}
}
