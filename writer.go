package gzblock

import (
	"context"
	"hash/crc32"
	"io"
	"runtime"
	"sync"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/flate"
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

// DefaultBlockSize is default size of uncompressed block.
const DefaultBlockSize = 64 * 1024

// WriterOptions for Writer.
type WriterOptions struct {
	Logger *zap.Logger
	// Pool runs block encoding tasks.
	//
	// If nil and Workers > 1, Writer starts and owns its own pool.
	Pool Executor
	// Workers is maximum number of blocks in flight.
	//
	// Defaults to Pool workers if available, otherwise to GOMAXPROCS.
	Workers int
	// Level is DEFLATE compression level, from flate.HuffmanOnly to
	// flate.BestCompression. Zero means flate.DefaultCompression.
	Level int
	// BlockSize is size of uncompressed block, defaults to DefaultBlockSize.
	BlockSize int
	// Header to write. Zero OS is written as OSUnknown.
	Header Header
	// HeaderCRC enables header CRC16.
	HeaderCRC bool

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *WriterOptions) setDefaults() {
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
	if o.Level == 0 {
		o.Level = flate.DefaultCompression
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Header.OS == 0 {
		o.Header.OS = OSUnknown
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// encodedBlock is result of block encoding task.
type encodedBlock struct {
	data []byte
	size int // uncompressed
}

// Writer encodes gzip stream of independent DEFLATE blocks, implementing
// io.WriteCloser.
//
// Compressed block lengths are recorded and available via BlockSizes
// and Index, so the stream can be decoded concurrently by Reader.
// Writer is not safe for concurrent use.
type Writer struct {
	lg        *zap.Logger
	w         io.Writer
	blockSize int
	buf       []byte // current uncompressed block

	queue     *pipeline.Queue[encodedBlock]
	deflaters *compress.Pool[*compress.Deflater]
	pool      *gzpool.Pool // owned

	ctx      context.Context
	cancel   context.CancelFunc
	inst     *instruments
	span     trace.Span
	spanOnce sync.Once

	sizes   BlockSizes
	digest  uint32
	size    uint64
	written int64 // compressed bytes, including header
	err     error
	closed  atomic.Bool
}

// NewWriter writes gzip header to w and initializes Writer.
//
// Writer does not close w.
func NewWriter(ctx context.Context, w io.Writer, opt WriterOptions) (*Writer, error) {
	opt.setDefaults()

	hdr, err := appendHeader(nil, opt.Header, opt.Level, opt.HeaderCRC)
	if err != nil {
		return nil, errors.Wrap(err, "header")
	}
	deflaters, err := compress.NewDeflaterPool(opt.Workers, opt.Level)
	if err != nil {
		return nil, errors.Wrap(err, "deflaters")
	}
	inst, err := newInstruments(opt.TracerProvider, opt.MeterProvider)
	if err != nil {
		deflaters.Close()
		return nil, errors.Wrap(err, "instruments")
	}

	ctx, cancel := context.WithCancel(ctx)
	ctx, span := inst.tracer.Start(ctx, "Encode",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(otelgz.Workers(opt.Workers)),
	)
	e := &Writer{
		lg:        opt.Logger,
		w:         w,
		blockSize: opt.BlockSize,
		buf:       make([]byte, 0, opt.BlockSize),
		deflaters: deflaters,
		ctx:       ctx,
		cancel:    cancel,
		inst:      inst,
		span:      span,
	}

	var exec pipeline.Executor = opt.Pool
	switch {
	case opt.Pool != nil:
	case opt.Workers == 1:
		exec = pipeline.Inline{}
	default:
		e.pool = gzpool.New(gzpool.Options{
			Workers: opt.Workers,
			Logger:  e.lg.Named("pool"),
		})
		exec = e.pool
	}
	e.queue = pipeline.New[encodedBlock](e.ctx, exec, opt.Workers)

	if err := e.write(hdr); err != nil {
		err = errors.Wrap(err, "write header")
		e.release()
		e.endSpan(err)
		return nil, err
	}

	return e, nil
}

// Write implements io.Writer, compressing p.
func (e *Writer) Write(p []byte) (int, error) {
	if e.closed.Load() {
		return 0, ErrStreamClosed
	}
	if e.err != nil {
		return 0, e.err
	}

	written := 0
	for len(p) > 0 {
		if len(e.buf) == e.blockSize {
			// Block is flushed only when more data follows, so the
			// last one can be marked final on Close.
			if err := e.flushBlock(false); err != nil {
				e.err = err
				return written, err
			}
		}
		n := min(e.blockSize-len(e.buf), len(p))
		e.buf = append(e.buf, p[:n]...)
		e.digest = crc32.Update(e.digest, crc32.IEEETable, p[:n])
		e.size += uint64(n)
		written += n
		p = p[n:]
	}

	return written, nil
}

// flushBlock submits current block for encoding.
func (e *Writer) flushBlock(final bool) error {
	if e.queue.Len() == e.queue.Cap() {
		if err := e.writeNext(); err != nil {
			return err
		}
	}

	data := e.buf
	e.buf = make([]byte, 0, e.blockSize)
	task := func(ctx context.Context) (out encodedBlock, err error) {
		out.size = len(data)
		err = e.deflaters.Do(ctx, func(d *compress.Deflater) error {
			out.data, err = d.Block(nil, data, final)
			return err
		})
		return out, err
	}
	if err := e.queue.Submit(e.ctx, task); err != nil {
		return errors.Wrap(err, "submit")
	}

	return nil
}

// writeNext writes head block of queue.
func (e *Writer) writeNext() error {
	b, err := e.queue.Next(e.ctx)
	if err != nil {
		return errors.Wrapf(err, "block %d", len(e.sizes))
	}
	if err := e.write(b.data); err != nil {
		return errors.Wrapf(err, "write block %d", len(e.sizes))
	}
	e.sizes = append(e.sizes, len(b.data))
	e.inst.block(e.ctx, directionEncode, int64(b.size))
	if ce := e.lg.Check(zap.DebugLevel, "Block"); ce != nil {
		ce.Write(
			zap.Int("block", len(e.sizes)-1),
			zap.Int("size", b.size),
			zap.Int("compressed", len(b.data)),
		)
	}

	return nil
}

func (e *Writer) write(b []byte) error {
	n, err := e.w.Write(b)
	e.written += int64(n)
	return err
}

// Close flushes final block and writes trailer.
//
// Close is idempotent and does not close underlying writer.
func (e *Writer) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.err
	if err == nil {
		err = e.finish()
	}
	if releaseErr := e.release(); releaseErr != nil {
		err = multierr.Append(err, releaseErr)
	}
	e.endSpan(err)

	return err
}

func (e *Writer) finish() error {
	if err := e.flushBlock(true); err != nil {
		return errors.Wrap(err, "final block")
	}
	for e.queue.Len() > 0 {
		if err := e.writeNext(); err != nil {
			return err
		}
	}
	if err := e.write(appendTrailer(nil, e.digest, e.size)); err != nil {
		return errors.Wrap(err, "write trailer")
	}
	e.span.SetAttributes(
		otelgz.Blocks(len(e.sizes)),
		otelgz.Size(int64(e.size)),
	)

	return nil
}

func (e *Writer) release() error {
	e.cancel()
	e.queue.Close()
	e.deflaters.Close()
	if e.pool != nil {
		if err := e.pool.Close(); err != nil {
			return errors.Wrap(err, "pool")
		}
	}
	return nil
}

func (e *Writer) endSpan(err error) {
	e.spanOnce.Do(func() {
		endSpan(e.span, err)
	})
}

// Written returns number of compressed bytes written to underlying writer.
func (e *Writer) Written() int64 { return e.written }

// BlockSizes returns compressed lengths of blocks written so far.
//
// After Close, it describes the whole stream.
func (e *Writer) BlockSizes() BlockSizes {
	s := make(BlockSizes, len(e.sizes))
	copy(s, e.sizes)
	return s
}

// Index returns index of stream, valid after Close.
func (e *Writer) Index() Index {
	return Index{
		Blocks: e.BlockSizes(),
		Size:   int64(e.size),
		CRC:    e.digest,
	}
}
