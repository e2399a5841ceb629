package compress

import (
	"bytes"

	"github.com/go-faster/errors"
	"github.com/klauspost/compress/flate"
)

// Deflater encodes independent DEFLATE blocks.
//
// Every block starts with empty dictionary, so blocks can be decoded
// separately and concatenated into single DEFLATE stream.
type Deflater struct {
	w *flate.Writer
}

// Block compresses src, appending encoded block to dst.
//
// Non-final blocks end with sync flush, final block ends with
// final DEFLATE block.
func (d *Deflater) Block(dst, src []byte, final bool) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	d.w.Reset(buf)
	if _, err := d.w.Write(src); err != nil {
		return nil, errors.Wrap(err, "write")
	}
	if final {
		if err := d.w.Close(); err != nil {
			return nil, errors.Wrap(err, "close")
		}
	} else {
		if err := d.w.Flush(); err != nil {
			return nil, errors.Wrap(err, "flush")
		}
	}
	return buf.Bytes(), nil
}

// NewDeflater creates new Deflater with provided compression level.
func NewDeflater(level int) (*Deflater, error) {
	w, err := flate.NewWriter(nil, level)
	if err != nil {
		return nil, errors.Wrapf(err, "level %d", level)
	}
	return &Deflater{w: w}, nil
}
