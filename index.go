package gzblock

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/segmentio/encoding/json"
)

// Index describes blocks of stream produced by Writer.
//
// It is stored next to the stream, so the Reader can decode blocks
// in parallel.
type Index struct {
	// Blocks are compressed block lengths.
	Blocks []int `json:"blocks"`
	// Size is total uncompressed size.
	Size int64 `json:"size"`
	// CRC is CRC-32 of uncompressed data.
	CRC uint32 `json:"crc"`
}

// Source returns new BlockSource of index blocks.
func (i Index) Source() *BlockSizes {
	s := make(BlockSizes, len(i.Blocks))
	copy(s, i.Blocks)
	return &s
}

// WriteIndex encodes index to w.
func WriteIndex(w io.Writer, i Index) error {
	if err := json.NewEncoder(w).Encode(i); err != nil {
		return errors.Wrap(err, "encode")
	}
	return nil
}

// ReadIndex decodes index from r.
func ReadIndex(r io.Reader) (Index, error) {
	var i Index
	if err := json.NewDecoder(r).Decode(&i); err != nil {
		return Index{}, errors.Wrap(err, "decode")
	}
	for n, size := range i.Blocks {
		if size < 0 || size > maxBlockSize {
			return Index{}, errors.Errorf("block %d: invalid size %d", n, size)
		}
	}
	return i, nil
}
