package gzblock

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/go-faster/errors"

	"github.com/go-faster/gzblock/internal/compress"
)

// gzipMagic is ID1 and ID2 read as little-endian uint16.
const gzipMagic = 0x8b1f

// Header flags.
const (
	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

// fixedHeaderSize is size of ID1, ID2, CM, FLG, MTIME, XFL and OS.
const fixedHeaderSize = 10

// OSUnknown is OS header value for unknown operating system.
const OSUnknown byte = 0xff

var bin = binary.LittleEndian

// Header of gzip member.
//
// Strings are UTF-8 encoded and converted from/to Latin-1 on the wire.
type Header struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time
	OS      byte

	// Len is total header length in bytes, set by Reader.
	Len int
}

// headerReader reads header fields, tracking CRC-32 and length of
// consumed bytes.
type headerReader struct {
	r      *bufio.Reader
	digest uint32
	n      int
	buf    [fixedHeaderSize]byte
}

func (h *headerReader) full(buf []byte) error {
	if _, err := io.ReadFull(h.r, buf); err != nil {
		return readErr(err)
	}
	h.digest = crc32.Update(h.digest, crc32.IEEETable, buf)
	h.n += len(buf)
	return nil
}

func (h *headerReader) uint8() (byte, error) {
	if err := h.full(h.buf[:1]); err != nil {
		return 0, err
	}
	return h.buf[0], nil
}

func (h *headerReader) uint16() (uint16, error) {
	if err := h.full(h.buf[:2]); err != nil {
		return 0, err
	}
	return bin.Uint16(h.buf[:2]), nil
}

// cstring reads zero-terminated Latin-1 string.
func (h *headerReader) cstring() (string, error) {
	var s []rune
	for {
		b, err := h.uint8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(s), nil
		}
		s = append(s, rune(b))
	}
}

// readHeader reads and validates gzip member header.
func readHeader(r *bufio.Reader) (Header, error) {
	h := &headerReader{r: r}
	magic, err := h.uint16()
	if err != nil {
		return Header{}, errors.Wrap(err, "magic")
	}
	if magic != gzipMagic {
		return Header{}, errors.Wrapf(ErrNotGzipFormat, "magic %#04x", magic)
	}
	method, err := h.uint8()
	if err != nil {
		return Header{}, errors.Wrap(err, "method")
	}
	if m := compress.Method(method); m != compress.Deflate {
		return Header{}, errors.Wrapf(ErrUnsupportedMethod, "%s", m)
	}
	flg, err := h.uint8()
	if err != nil {
		return Header{}, errors.Wrap(err, "flags")
	}
	// MTIME, XFL and OS.
	if err := h.full(h.buf[:6]); err != nil {
		return Header{}, errors.Wrap(err, "fields")
	}

	var hdr Header
	if t := bin.Uint32(h.buf[:4]); t > 0 {
		hdr.ModTime = time.Unix(int64(t), 0)
	}
	hdr.OS = h.buf[5]

	if flg&flagExtra != 0 {
		n, err := h.uint16()
		if err != nil {
			return Header{}, errors.Wrap(err, "extra length")
		}
		hdr.Extra = make([]byte, n)
		if err := h.full(hdr.Extra); err != nil {
			return Header{}, errors.Wrap(err, "extra")
		}
	}
	if flg&flagName != 0 {
		if hdr.Name, err = h.cstring(); err != nil {
			return Header{}, errors.Wrap(err, "name")
		}
	}
	if flg&flagComment != 0 {
		if hdr.Comment, err = h.cstring(); err != nil {
			return Header{}, errors.Wrap(err, "comment")
		}
	}
	if flg&flagHdrCrc != 0 {
		expected := uint16(h.digest)
		got, err := h.uint16()
		if err != nil {
			return Header{}, errors.Wrap(err, "crc")
		}
		if got != expected {
			return Header{}, errors.Wrapf(ErrCorruptHeader, "crc %#04x, computed %#04x", got, expected)
		}
	}
	hdr.Len = h.n

	return hdr, nil
}

// latin1 converts UTF-8 string to Latin-1, as required by RFC 1952.
func latin1(s string) ([]byte, error) {
	buf := make([]byte, 0, len(s))
	for _, v := range s {
		if v == 0 || v > 0xff {
			return nil, errors.Errorf("non-Latin-1 header string %q", s)
		}
		buf = append(buf, byte(v))
	}
	return buf, nil
}

// appendHeader encodes header to b.
//
// XFL is derived from compression level, header CRC is added if hcrc is set.
func appendHeader(b []byte, h Header, level int, hcrc bool) ([]byte, error) {
	start := len(b)

	var flg byte
	if h.Extra != nil {
		flg |= flagExtra
	}
	if h.Name != "" {
		flg |= flagName
	}
	if h.Comment != "" {
		flg |= flagComment
	}
	if hcrc {
		flg |= flagHdrCrc
	}

	var mtime uint32
	if h.ModTime.After(time.Unix(0, 0)) {
		// Section 2.3.1, the zero value for MTIME means that the
		// modified time is not set.
		mtime = uint32(h.ModTime.Unix())
	}
	var xfl byte
	switch level {
	case 9:
		xfl = 2
	case 1:
		xfl = 4
	}

	b = bin.AppendUint16(b, gzipMagic)
	b = append(b, byte(compress.Deflate), flg)
	b = bin.AppendUint32(b, mtime)
	b = append(b, xfl, h.OS)

	if h.Extra != nil {
		if len(h.Extra) > 0xffff {
			return nil, errors.Errorf("extra data is too large (%d)", len(h.Extra))
		}
		b = bin.AppendUint16(b, uint16(len(h.Extra)))
		b = append(b, h.Extra...)
	}
	for _, s := range []string{h.Name, h.Comment} {
		if s == "" {
			continue
		}
		v, err := latin1(s)
		if err != nil {
			return nil, err
		}
		b = append(b, v...)
		b = append(b, 0)
	}
	if hcrc {
		b = bin.AppendUint16(b, uint16(crc32.ChecksumIEEE(b[start:])))
	}

	return b, nil
}

// readErr annotates premature end of input with ErrUnexpectedEndOfInput.
func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return withCode(ErrUnexpectedEndOfInput, noEOF(err))
	}
	return err
}

// noEOF converts io.EOF to io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
