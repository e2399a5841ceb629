package gzblock

import (
	"github.com/go-faster/errors"
)

// Error is gzip stream failure code.
//
// Every failure returned by Reader wraps one of the codes, so it can be
// checked with errors.Is or IsErr.
type Error byte

func (e Error) Error() string {
	return e.String()
}

//go:generate go run github.com/dmarkham/enumer -transform snake_upper -type Error -trimprefix Err -output error_gen.go

// Possible error codes.
const (
	ErrNotGzipFormat        Error = iota + 1 // bad magic
	ErrUnsupportedMethod                     // method is not DEFLATE
	ErrCorruptHeader                         // header CRC mismatch
	ErrUnexpectedEndOfInput                  // truncated header, block or trailer
	ErrCorruptData                           // malformed DEFLATE data
	ErrCrcMismatch                           // trailer CRC-32 mismatch
	ErrSizeMismatch                          // trailer ISIZE mismatch
	ErrStreamClosed                          // read after close
)

// codeError is error with code and underlying cause.
type codeError struct {
	code Error
	err  error
}

func (e *codeError) Error() string {
	return e.code.String() + ": " + e.err.Error()
}

func (e *codeError) Unwrap() []error {
	return []error{e.code, e.err}
}

// withCode annotates err with code, keeping err in chain.
func withCode(code Error, err error) error {
	if err == nil {
		return nil
	}
	return &codeError{code: code, err: err}
}

// AsError finds first Error code in err chain.
func AsError(err error) (Error, bool) {
	var e Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e, true
}

// IsErr reports whether err has one of provided codes.
func IsErr(err error, codes ...Error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if e == c {
			return true
		}
	}
	return false
}
