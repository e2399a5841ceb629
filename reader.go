// Package gzblock implements decoding and encoding of block-structured gzip
// streams, inflating independent blocks concurrently while delivering
// output in original order.
package gzblock

import (
	"bufio"
	"context"
	"hash/crc32"
	"io"
	"runtime"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-faster/gzblock/gzpool"
	"github.com/go-faster/gzblock/internal/compress"
	"github.com/go-faster/gzblock/internal/pipeline"
	"github.com/go-faster/gzblock/otelgz"
)

const (
	defaultBufferSize = 64 * 1024         // 64KB
	maxBlockSize      = 1024 * 1024 * 128 // 128MB
)

// Executor runs block tasks, possibly concurrently.
//
// Implemented by *gzpool.Pool.
type Executor interface {
	Submit(ctx context.Context, task func(ctx context.Context)) error
}

// ReaderOptions for Reader.
type ReaderOptions struct {
	Logger *zap.Logger
	// Pool runs block decoding tasks.
	//
	// If nil and Workers > 1, Reader starts and owns its own pool.
	Pool Executor
	// Workers is maximum number of blocks in flight.
	//
	// Defaults to Pool workers if available, otherwise to GOMAXPROCS.
	// Blocks are decoded sequentially if Workers is 1.
	Workers int
	// Blocks supplies compressed block lengths.
	//
	// If nil, payload is decoded sequentially as single DEFLATE stream.
	Blocks BlockSource

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *ReaderOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Workers <= 0 {
		if p, ok := o.Pool.(interface{ Workers() int }); ok {
			o.Workers = p.Workers()
		} else {
			o.Workers = runtime.GOMAXPROCS(0)
		}
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Reader decodes gzip stream, implementing io.ReadCloser.
//
// Reader is not safe for concurrent use, except Close.
type Reader struct {
	lg     *zap.Logger
	source io.Reader
	src    *bufio.Reader
	header Header
	blocks BlockSource
	noMore bool // blocks exhausted

	// Sequential decoding.
	inf     *compress.Inflater
	block   []byte
	started bool // inf has input

	// Pipelined decoding.
	queue     *pipeline.Queue[[]byte]
	inflaters *compress.Pool[*compress.Inflater]
	pool      *gzpool.Pool // owned
	out       []byte       // inflated, not yet returned
	blockErr  error        // deferred block read failure

	ctx      context.Context
	cancel   context.CancelFunc
	inst     *instruments
	span     trace.Span
	spanOnce sync.Once

	digest  uint32 // CRC-32 of returned bytes
	size    uint64 // uncompressed bytes, ISIZE is size mod 2^32
	nblocks int    // decoded blocks
	eos     bool
	err     error
	closed  atomic.Bool
	trailer [trailerSize]byte
}

// NewReader reads gzip header from r and initializes Reader.
//
// Canceling ctx cancels pending block decoding. If r implements
// io.Closer, it is closed on Close.
func NewReader(ctx context.Context, r io.Reader, opt ReaderOptions) (*Reader, error) {
	opt.setDefaults()

	inst, err := newInstruments(opt.TracerProvider, opt.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "instruments")
	}
	ctx, cancel := context.WithCancel(ctx)
	ctx, span := inst.tracer.Start(ctx, "Decode",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(otelgz.Workers(opt.Workers)),
	)

	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, defaultBufferSize)
	}
	d := &Reader{
		lg:     opt.Logger,
		source: r,
		src:    br,
		blocks: opt.Blocks,
		ctx:    ctx,
		cancel: cancel,
		inst:   inst,
		span:   span,
	}

	hdr, err := readHeader(br)
	if err != nil {
		err = errors.Wrap(err, "header")
		d.endSpan(err)
		cancel()
		return nil, err
	}
	d.header = hdr
	span.SetAttributes(otelgz.HeaderLen(hdr.Len))
	if ce := d.lg.Check(zap.DebugLevel, "Header"); ce != nil {
		ce.Write(
			zap.Int("len", hdr.Len),
			zap.String("name", hdr.Name),
			zap.Time("mod_time", hdr.ModTime),
		)
	}

	if opt.Blocks != nil && opt.Workers > 1 {
		if err := d.initPipeline(opt); err != nil {
			d.endSpan(err)
			cancel()
			return nil, errors.Wrap(err, "pipeline")
		}
		return d, nil
	}

	d.inf = compress.NewInflater()
	if opt.Blocks == nil {
		// No block boundaries, decoding payload up to final DEFLATE block.
		d.inf.ResetStream(br)
		d.started = true
	}

	return d, nil
}

func (r *Reader) initPipeline(opt ReaderOptions) error {
	inflaters, err := compress.NewInflaterPool(opt.Workers)
	if err != nil {
		return errors.Wrap(err, "inflaters")
	}
	exec := opt.Pool
	if exec == nil {
		r.pool = gzpool.New(gzpool.Options{
			Workers: opt.Workers,
			Logger:  r.lg.Named("pool"),
		})
		exec = r.pool
	}
	r.inflaters = inflaters
	r.queue = pipeline.New[[]byte](r.ctx, exec, opt.Workers)

	return nil
}

// Header returns gzip header.
func (r *Reader) Header() Header { return r.header }

// Read implements io.Reader, reading uncompressed bytes.
//
// Returns io.EOF after trailer is validated. Clients should treat data
// returned by Read as tentative until io.EOF, because CRC-32 and size are
// checked at the end of stream.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrStreamClosed
	}
	if r.err != nil {
		return 0, r.err
	}
	if r.eos {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.ctx.Err(); err != nil {
		r.err = errors.Wrap(err, "read")
		r.endSpan(r.err)
		return 0, r.err
	}

	var (
		n   int
		err error
	)
	if r.queue != nil {
		n, err = r.readPipelined(p)
	} else {
		n, err = r.readSequential(p)
	}
	if err != nil && err != io.EOF {
		r.err = err
		r.endSpan(err)
	}

	return n, err
}

// readSequential inflates blocks one by one directly into p.
func (r *Reader) readSequential(p []byte) (int, error) {
	for {
		n, err := r.inf.Inflate(p)
		if err != nil {
			return 0, errors.Wrapf(inflateErr(err), "block %d", r.nblocks)
		}
		if n > 0 {
			r.digest = crc32.Update(r.digest, crc32.IEEETable, p[:n])
			return n, nil
		}

		size, ok := r.nextBlock()
		if !ok {
			return 0, r.finish()
		}
		if r.block, err = r.readBlock(r.block, size); err != nil {
			return 0, err
		}
		if r.started {
			// Counter is reset by Reset.
			r.blockDone(r.inf.Written())
		}
		r.inf.Reset(r.block)
		r.started = true
	}
}

// readPipelined returns inflated blocks in order, keeping up to Workers
// blocks in flight.
func (r *Reader) readPipelined(p []byte) (int, error) {
	for len(r.out) == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
		if r.queue.Len() == 0 {
			if r.blockErr != nil {
				return 0, r.blockErr
			}
			return 0, r.finish()
		}
		out, err := r.queue.Next(r.ctx)
		if err != nil {
			return 0, errors.Wrapf(r.taskErr(err), "block %d", r.nblocks)
		}
		r.blockDone(int64(len(out)))
		r.out = out
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	r.digest = crc32.Update(r.digest, crc32.IEEETable, p[:n])

	return n, nil
}

// fill submits decoding tasks while queue has free slots.
//
// Block read failure is deferred until already submitted blocks are
// delivered.
func (r *Reader) fill() error {
	for r.blockErr == nil && r.queue.Len() < r.queue.Cap() {
		size, ok := r.nextBlock()
		if !ok {
			return nil
		}
		block, err := r.readBlock(nil, size)
		if err != nil {
			r.blockErr = err
			return nil
		}
		if err := r.queue.Submit(r.ctx, r.inflateTask(block)); err != nil {
			return errors.Wrap(r.taskErr(err), "submit")
		}
	}
	return nil
}

func (r *Reader) inflateTask(block []byte) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) (out []byte, err error) {
		err = r.inflaters.Do(ctx, func(f *compress.Inflater) error {
			out, err = f.InflateBlock(nil, block)
			return err
		})
		return out, err
	}
}

func (r *Reader) nextBlock() (int, bool) {
	if r.blocks == nil || r.noMore {
		return 0, false
	}
	size, ok := r.blocks.Next()
	if !ok {
		r.noMore = true
	}
	return size, ok
}

// readBlock reads compressed block of size bytes into buf.
func (r *Reader) readBlock(buf []byte, size int) ([]byte, error) {
	if size < 0 || size > maxBlockSize {
		return nil, withCode(ErrCorruptData,
			errors.Errorf("block size should be %d <= %d <= %d", 0, size, maxBlockSize),
		)
	}
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return nil, errors.Wrap(readErr(err), "read block")
	}
	return buf, nil
}

// blockDone accounts uncompressed size of finished block.
func (r *Reader) blockDone(size int64) {
	r.size += uint64(size)
	r.nblocks++
	r.inst.block(r.ctx, directionDecode, size)
	if ce := r.lg.Check(zap.DebugLevel, "Block"); ce != nil {
		ce.Write(
			zap.Int("block", r.nblocks-1),
			zap.Int64("size", size),
		)
	}
}

// finish validates trailer at the end of data.
func (r *Reader) finish() error {
	if r.inf != nil && r.started {
		r.blockDone(r.inf.Written())
		r.started = false
	}
	if _, err := io.ReadFull(r.src, r.trailer[:]); err != nil {
		return errors.Wrap(readErr(err), "read trailer")
	}
	if err := checkTrailer(r.trailer[:], r.digest, r.size); err != nil {
		return errors.Wrap(err, "trailer")
	}

	r.eos = true
	r.span.SetAttributes(
		otelgz.Blocks(r.nblocks),
		otelgz.Size(int64(r.size)),
	)
	r.endSpan(nil)

	return io.EOF
}

func (r *Reader) taskErr(err error) error {
	if r.closed.Load() || errors.Is(err, pipeline.ErrClosed) {
		return withCode(ErrStreamClosed, err)
	}
	return inflateErr(err)
}

// inflateErr annotates raw inflate failures with error codes.
func inflateErr(err error) error {
	var corrupt *compress.CorruptError
	switch {
	case errors.As(err, &corrupt):
		return withCode(ErrCorruptData, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return withCode(ErrUnexpectedEndOfInput, err)
	default:
		return err
	}
}

func (r *Reader) endSpan(err error) {
	r.spanOnce.Do(func() {
		endSpan(r.span, err)
	})
}

// Close releases underlying reader and pending decoding tasks.
//
// Does not wait for running tasks. Close is idempotent, subsequent Read
// calls fail with ErrStreamClosed.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel()
	if r.queue != nil {
		r.queue.Close()
	}
	if r.inflaters != nil {
		r.inflaters.Close()
	}

	var err error
	if r.pool != nil {
		if closeErr := r.pool.Close(); closeErr != nil {
			err = multierr.Append(err, errors.Wrap(closeErr, "pool"))
		}
	}
	if c, ok := r.source.(io.Closer); ok {
		if closeErr := c.Close(); closeErr != nil {
			err = multierr.Append(err, errors.Wrap(closeErr, "source"))
		}
	}
	r.endSpan(nil)

	return err
}
