// Package compress implements raw DEFLATE block primitives.
package compress

import "fmt"

// Method is gzip compression method.
type Method byte

// Deflate is the only method defined by RFC 1952.
const Deflate Method = 0x08

func (m Method) String() string {
	if m == Deflate {
		return "DEFLATE"
	}
	return fmt.Sprintf("Method(0x%02x)", byte(m))
}

const (
	// minGrow is minimum output growth step of InflateBlock.
	minGrow = 4 * 1024
	// expectRatio is initial guess of uncompressed to compressed block ratio.
	expectRatio = 4
)
