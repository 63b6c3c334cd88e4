package install

import (
	"errors"
	"fmt"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrCancelled        = errors.New("install cancelled")
	ErrBusy             = errors.New("an install batch is already running for this catalog")
)

// MismatchError reports a downloaded bundle whose digest differs from the
// one the catalog declares.
type MismatchError struct {
	Listing  string
	Expected string
	Actual   string
	Attempts int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected digest %s, got %s after %d download(s)", e.Listing, e.Expected, e.Actual, e.Attempts)
}

func (e *MismatchError) Unwrap() error {
	return ErrChecksumMismatch
}
