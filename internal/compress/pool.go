package compress

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/puddle/v2"
)

// Pool is bounded pool of codec instances.
//
// Instances are not safe for concurrent use, so every task acquires
// its own instance for the duration of Do.
type Pool[T any] struct {
	pool *puddle.Pool[T]
}

// NewPool creates pool of at most size instances constructed by newT.
func NewPool[T any](size int, newT func() (T, error)) (*Pool[T], error) {
	if size <= 0 {
		return nil, errors.Errorf("pool size %d should be positive", size)
	}
	p, err := puddle.NewPool[T](&puddle.Config[T]{
		Constructor: func(ctx context.Context) (T, error) {
			return newT()
		},
		Destructor: func(T) {},
		MaxSize:    int32(size),
	})
	if err != nil {
		return nil, errors.Wrap(err, "pool")
	}
	return &Pool[T]{pool: p}, nil
}

// NewInflaterPool creates pool of at most size inflaters.
func NewInflaterPool(size int) (*Pool[*Inflater], error) {
	return NewPool[*Inflater](size, func() (*Inflater, error) {
		return NewInflater(), nil
	})
}

// NewDeflaterPool creates pool of at most size deflaters with level.
func NewDeflaterPool(size, level int) (*Pool[*Deflater], error) {
	// Fail early on invalid level.
	if _, err := NewDeflater(level); err != nil {
		return nil, err
	}
	return NewPool[*Deflater](size, func() (*Deflater, error) {
		return NewDeflater(level)
	})
}

// Do acquires instance, calls f and releases instance.
func (p *Pool[T]) Do(ctx context.Context, f func(v T) error) error {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	defer res.Release()

	return f(res.Value())
}

// Close rejects further Do calls and returns immediately.
//
// Instances still in use are destroyed once released.
func (p *Pool[T]) Close() {
	go p.pool.Close()
}
