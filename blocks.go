package gzblock

// BlockSource supplies compressed block lengths in stream order.
//
// Block boundaries are not described by the stream itself, so the
// encoder has to communicate them, e.g. via Writer.BlockSizes or Index.
// This channel is provisional and is expected to be replaced by
// self-describing block framing.
//
// Next reports false when no blocks are left and the trailer follows.
type BlockSource interface {
	Next() (size int, ok bool)
}

// BlockSizes is FIFO list of compressed block lengths.
//
// Empty list is valid and means that the trailer follows.
type BlockSizes []int

// Next pops first block length.
func (b *BlockSizes) Next() (int, bool) {
	if len(*b) == 0 {
		return 0, false
	}
	v := (*b)[0]
	*b = (*b)[1:]
	return v, true
}

// Total returns sum of remaining block lengths.
func (b BlockSizes) Total() (n int64) {
	for _, v := range b {
		n += int64(v)
	}
	return n
}
