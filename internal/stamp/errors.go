package stamp

import (
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
)

// Error kinds returned by Stamp. Check them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDecodeFailure       = errors.New("decode failure")
	ErrEncodingFailure     = errors.New("encoding failure")
	ErrPageIndexOutOfRange = errors.New("page index out of range")
)

var kinds = []error{
	ErrInvalidInput,
	ErrDecodeFailure,
	ErrPageIndexOutOfRange,
	ErrEncodingFailure,
}

// Kind returns the error kind carried by err, or nil if err is not a stamping error.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// wrapKind attaches kind to a library error so both stay reachable through errors.Is.
func wrapKind(kind, cause error, msg string, opts ...goerr.Option) error {
	if cause == nil {
		return goerr.Wrap(kind, msg, opts...)
	}
	return goerr.Wrap(fmt.Errorf("%w: %w", kind, cause), msg, opts...)
}
