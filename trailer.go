package gzblock

import (
	"github.com/go-faster/errors"
)

// trailerSize is size of CRC-32 and ISIZE.
const trailerSize = 8

// checkTrailer validates trailer against CRC-32 and size of uncompressed
// data. ISIZE is compared modulo 2^32.
//
// Both fields are checked, CRC-32 mismatch is reported first.
func checkTrailer(trailer []byte, digest uint32, size uint64) error {
	_ = trailer[:trailerSize]

	var (
		gotDigest = bin.Uint32(trailer[0:4])
		gotSize   = bin.Uint32(trailer[4:8])

		crcErr, sizeErr error
	)
	if gotDigest != digest {
		crcErr = errors.Wrapf(ErrCrcMismatch, "crc %#08x, computed %#08x", gotDigest, digest)
	}
	if gotSize != uint32(size) {
		sizeErr = errors.Wrapf(ErrSizeMismatch, "isize %d, computed %d", gotSize, uint32(size))
	}
	if crcErr != nil {
		return crcErr
	}

	return sizeErr
}

// appendTrailer encodes trailer to b.
func appendTrailer(b []byte, digest uint32, size uint64) []byte {
	b = bin.AppendUint32(b, digest)
	return bin.AppendUint32(b, uint32(size))
}
