// Package errdefs defines the failure kinds a dump can end with.
//
// Every error that leaves a package in this module is classified with one of
// the sentinel kinds below. Classified errors keep their cause, so errors.Is
// matches both the kind and whatever the kind wraps (io.ErrUnexpectedEOF, a
// *url.Error, and so on).
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned for a missing or incorrect magic, a missing EOCD
	// signature or a malformed fixed-length record.
	ErrFormat = errors.New("format error")

	// ErrVersionMismatch is returned for an unsupported payload version.
	ErrVersionMismatch = errors.New("unsupported version")

	// ErrDecode is returned when the manifest bytes fail schema decoding.
	ErrDecode = errors.New("decode error")

	// ErrIO is returned for seek or read failures on any source, including
	// network failures and rejected range requests.
	ErrIO = errors.New("i/o error")

	// ErrNotFound is returned when a named entry is absent from a container.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition is returned when a located entry cannot be used as is,
	// for example because it is compressed.
	ErrPrecondition = errors.New("precondition failed")
)

var kinds = []error{ErrFormat, ErrVersionMismatch, ErrDecode, ErrIO, ErrNotFound, ErrPrecondition}

// Error is a classified failure.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification.
	if Kind(err) != nil {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Format builds an ErrFormat failure.
func Format(format string, args ...any) error { return newf(ErrFormat, format, args...) }

// VersionMismatch builds an ErrVersionMismatch failure.
func VersionMismatch(format string, args ...any) error {
	return newf(ErrVersionMismatch, format, args...)
}

// Decode builds an ErrDecode failure.
func Decode(format string, args ...any) error { return newf(ErrDecode, format, args...) }

// NotFound builds an ErrNotFound failure.
func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Precondition builds an ErrPrecondition failure.
func Precondition(format string, args ...any) error { return newf(ErrPrecondition, format, args...) }

// IO classifies err as an ErrIO failure. Errors that already carry a kind are
// returned unchanged. A nil err yields nil.
func IO(err error) error { return wrap(ErrIO, err) }

// IOf builds an ErrIO failure from a message, wrapping with %w as usual.
func IOf(format string, args ...any) error { return newf(ErrIO, format, args...) }

// Kind returns the sentinel kind of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
