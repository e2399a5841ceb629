package compress

import (
	"bytes"
	"io"
	"slices"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/flate"
)

// CorruptError reports malformed DEFLATE input.
type CorruptError struct {
	Err error
}

func (e *CorruptError) Error() string {
	return "corrupt deflate data: " + e.Err.Error()
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Inflater is a stateful raw DEFLATE decompressor.
//
// Input is set per block with Reset, or per stream with ResetStream.
// Unconsumed input is discarded on reset.
type Inflater struct {
	src     bytes.Reader
	dec     io.ReadCloser
	written int64
	bounded bool // input is a single block held in src
	done    bool
	err     error
}

// NewInflater initializes Inflater without input.
func NewInflater() *Inflater {
	f := &Inflater{done: true}
	f.dec = flate.NewReader(&f.src)
	return f
}

// Reset discards current state and starts decoding block.
//
// A block must end either on a sync flush boundary or with a final
// DEFLATE block.
func (f *Inflater) Reset(block []byte) {
	f.src.Reset(block)
	f.reset(&f.src, true)
}

// ResetStream discards current state and starts decoding DEFLATE stream
// from r up to the final block. No bytes past the final block are consumed.
func (f *Inflater) ResetStream(r flate.Reader) {
	f.reset(r, false)
}

func (f *Inflater) reset(r io.Reader, bounded bool) {
	// Reset of flate decompressor never fails.
	_ = f.dec.(flate.Resetter).Reset(r, nil)
	f.written = 0
	f.bounded = bounded
	f.done = false
	f.err = nil
}

// Written returns number of bytes produced since last reset.
func (f *Inflater) Written() int64 { return f.written }

// NeedsInput reports whether current input is exhausted.
func (f *Inflater) NeedsInput() bool { return f.done && f.err == nil }

// Inflate decompresses into p.
//
// Returns 0 and nil error when current input is exhausted and Reset is
// required to continue. Returned errors are sticky until reset.
func (f *Inflater) Inflate(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for !f.done && len(p) > 0 {
		n, err := f.dec.Read(p)
		f.written += int64(n)
		if err != nil {
			f.finish(err)
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, f.err
}

func (f *Inflater) finish(err error) {
	f.done = true
	switch {
	case errors.Is(err, io.EOF):
		// Final block.
	case errors.Is(err, io.ErrUnexpectedEOF) && f.bounded && f.src.Len() == 0:
		// Block ended on sync flush boundary.
	case errors.Is(err, io.ErrUnexpectedEOF):
		f.err = errors.Wrap(err, "truncated")
	default:
		f.err = &CorruptError{Err: err}
	}
}

// InflateBlock decompresses whole block, appending output to dst.
func (f *Inflater) InflateBlock(dst, block []byte) ([]byte, error) {
	f.Reset(block)
	if cap(dst)-len(dst) < minGrow {
		dst = slices.Grow(dst, max(minGrow, expectRatio*len(block)))
	}
	for {
		if len(dst) == cap(dst) {
			dst = slices.Grow(dst, max(minGrow, len(dst)))
		}
		n, err := f.Inflate(dst[len(dst):cap(dst)])
		dst = dst[:len(dst)+n]
		if err != nil {
			return dst, err
		}
		if n == 0 {
			return dst, nil
		}
	}
}
