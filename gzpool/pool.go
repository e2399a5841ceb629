// Package gzpool implements worker pool for block compression and
// decompression.
//
// Pool is explicitly constructed and owned. It can be shared between
// many readers and writers, but is never created implicitly as
// process-wide state.
package gzpool

import (
	"context"
	"runtime"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned on Submit to closed pool.
var ErrClosed = errors.New("pool closed")

// Pool of workers.
type Pool struct {
	lg      *zap.Logger
	workers int
	tasks   chan task

	ctx       context.Context
	cancel    context.CancelFunc
	g         *errgroup.Group
	closeOnce sync.Once

	submitted atomic.Uint64
	completed atomic.Uint64
	active    atomic.Int64
}

type task struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// Options for Pool.
type Options struct {
	// Workers is number of worker goroutines.
	// Defaults to GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// New starts new Pool.
//
// It is the caller's responsibility to call Close.
func New(opt Options) *Pool {
	opt.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(ctx)
	p := &Pool{
		lg:      opt.Logger,
		workers: opt.Workers,
		tasks:   make(chan task),
		ctx:     ctx,
		cancel:  cancel,
		g:       g,
	}
	for i := 0; i < opt.Workers; i++ {
		id := i
		g.Go(func() error {
			p.worker(gCtx, id)
			return nil
		})
	}

	return p
}

func (p *Pool) worker(ctx context.Context, id int) {
	if ce := p.lg.Check(zap.DebugLevel, "Worker started"); ce != nil {
		ce.Write(zap.Int("worker", id))
	}
	for {
		select {
		case <-ctx.Done():
			if ce := p.lg.Check(zap.DebugLevel, "Worker stopped"); ce != nil {
				ce.Write(zap.Int("worker", id))
			}
			return
		case t := <-p.tasks:
			p.run(t)
		}
	}
}

func (p *Pool) run(t task) {
	p.active.Inc()
	defer func() {
		p.active.Dec()
		p.completed.Inc()
	}()

	t.fn(t.ctx)
}

// Submit hands task to free worker, blocking until one is available.
//
// Accepted task is always called, even if ctx is canceled afterwards,
// so task should check ctx itself.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	if err := p.ctx.Err(); err != nil {
		return ErrClosed
	}
	select {
	case p.tasks <- task{ctx: ctx, fn: fn}:
		p.submitted.Inc()
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "submit")
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Stats of Pool.
type Stats struct {
	Workers   int
	Submitted uint64
	Completed uint64
	Active    int64
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Active:    p.active.Load(),
	}
}

// Workers returns number of workers.
func (p *Pool) Workers() int { return p.workers }

// Close stops accepting tasks and returns immediately.
//
// Running tasks are not interrupted; use Wait to wait for them.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
	})
	return nil
}

// Wait blocks until all workers exit after Close.
func (p *Pool) Wait() error {
	if err := p.g.Wait(); err != nil {
		return errors.Wrap(err, "wait")
	}
	return nil
}
